package calculator

import (
	"math"

	"SignalSentinel/internal/model"
)

// RSISeries computes the Wilder-smoothed RSI of every close. Undefined positions are NaN,
// including bars where the average loss is zero.
func RSISeries(closes []float64, period int) []float64 {
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			gains[i], losses[i] = math.NaN(), math.NaN()
			continue
		}
		d := closes[i] - closes[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}
	avgGain := wilderSeries(gains, period)
	avgLoss := wilderSeries(losses, period)

	out := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) || avgLoss[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// CalculateRSI returns the latest RSI, or 50 when it is undefined.
func CalculateRSI(candles []model.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, errNonPositivePeriod
	}
	return orDefault(last(RSISeries(extractCloses(candles), period)), 50), nil
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar; the first bar uses high-low.
func TrueRange(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries is the Wilder-smoothed average true range.
func ATRSeries(candles []model.Candle, period int) []float64 {
	return wilderSeries(TrueRange(candles), period)
}
