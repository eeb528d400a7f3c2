package calculator

import (
	"errors"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"SignalSentinel/internal/model"
)

var (
	errNonPositivePeriod = errors.New("period must be positive")
	errNotEnoughData     = errors.New("not enough data")
)

// CalculateSMA computes the simple moving average of the last period values.
func CalculateSMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errNonPositivePeriod
	}
	if len(values) < period {
		return 0, errNotEnoughData
	}
	sma := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](period).Compute(helper.SliceToChan(values)))
	if len(sma) == 0 {
		return 0, errNotEnoughData
	}
	return sma[len(sma)-1], nil
}

// rollingMean returns the trailing mean of each window; positions before the first full
// window, or windows containing NaN, are NaN.
func rollingMean(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i+1 < period {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[i+1-period : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMASeries is an exponential moving average with alpha = 2/(span+1), seeded with the first value.
func EMASeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// wilderSeries applies Wilder's exponential weighting (alpha = 1/period) with normalized weights:
// each value is sum((1-a)^k * x[t-k]) / sum((1-a)^k) over the non-NaN history.
// Positions with fewer than period observations are NaN.
func wilderSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	decay := 1 - 1/float64(period)
	var num, den float64
	seen := 0
	for i, v := range values {
		if math.IsNaN(v) {
			num *= decay
			den *= decay
			out[i] = math.NaN()
			continue
		}
		num = v + decay*num
		den = 1 + decay*den
		seen++
		if seen < period {
			out[i] = math.NaN()
			continue
		}
		out[i] = num / den
	}
	return out
}

func extractCloses(candles []model.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func extractVolumes(candles []model.Candle) []float64 {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	return vols
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// orDefault replaces an undefined value with def.
func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
