package calculator

import (
	"math"

	"SignalSentinel/internal/model"
)

// MACD holds the latest MACD values.
type MACD struct {
	Line, Signal, Hist, HistPrev float64
}

// MACDSeries returns the MACD line, signal line and histogram of every close.
func MACDSeries(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	ef := EMASeries(closes, fast)
	es := EMASeries(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = ef[i] - es[i]
	}
	sig = EMASeries(line, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// CalculateMACD returns the latest MACD values.
func CalculateMACD(closes []float64, fast, slow, signal int) MACD {
	line, sig, hist := MACDSeries(closes, fast, slow, signal)
	m := MACD{Line: last(line), Signal: last(sig), Hist: last(hist)}
	if len(hist) >= 2 {
		m.HistPrev = hist[len(hist)-2]
	}
	return m
}

// CalculateBollinger returns the bands at sigma sample standard deviations around the SMA.
// ok is false when there are fewer than period closes.
func CalculateBollinger(closes []float64, period int, sigma float64) (upper, mid, lower float64, ok bool) {
	mid, err := CalculateSMA(closes, period)
	if err != nil || period < 2 {
		return 0, 0, 0, false
	}
	var ss float64
	for _, c := range closes[len(closes)-period:] {
		ss += (c - mid) * (c - mid)
	}
	sd := math.Sqrt(ss / float64(period-1))
	return mid + sigma*sd, mid, mid - sigma*sd, true
}

// CalculateStochRSI computes stochastic RSI K and D (already scaled to 0..100).
// Windows containing an undefined RSI yield NaN.
func CalculateStochRSI(rsi []float64, period, smoothK, smoothD int) (k, d float64) {
	stoch := make([]float64, len(rsi))
	for i := range rsi {
		if i+1 < period {
			stoch[i] = math.NaN()
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		undefined := false
		for _, v := range rsi[i+1-period : i+1] {
			if math.IsNaN(v) {
				undefined = true
				break
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if undefined {
			stoch[i] = math.NaN()
			continue
		}
		stoch[i] = (rsi[i] - lo) / (hi - lo + 1e-9)
	}
	ks := rollingMean(stoch, smoothK)
	for i := range ks {
		ks[i] *= 100
	}
	ds := rollingMean(ks, smoothD)
	return last(ks), last(ds)
}

// CalculateVWAP returns the cumulative volume-weighted typical price over the series.
func CalculateVWAP(candles []model.Candle) float64 {
	var pv, vol float64
	for _, c := range candles {
		pv += (c.High + c.Low + c.Close) / 3 * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return math.NaN()
	}
	return pv / vol
}

// OBVSeries is the on-balance volume, starting at 0 on the first bar.
func OBVSeries(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		d := candles[i].Close - candles[i-1].Close
		switch {
		case d > 0:
			out[i] = out[i-1] + candles[i].Volume
		case d < 0:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
