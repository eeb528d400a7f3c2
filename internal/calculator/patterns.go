package calculator

import (
	"math"

	"SignalSentinel/internal/model"
)

// DetectDivergence compares the first and last of the final lookback points of price and
// oscillator. Price up while the oscillator is not is bearish; the reverse is bullish.
func DetectDivergence(price, osc []float64, lookback int) model.Divergence {
	if len(price) < lookback+1 || len(osc) < lookback+1 || lookback < 2 {
		return model.DivergenceNone
	}
	p := price[len(price)-lookback:]
	o := osc[len(osc)-lookback:]
	priceHigher := p[len(p)-1] > p[0]
	oscHigher := o[len(o)-1] > o[0]
	switch {
	case priceHigher && !oscHigher:
		return model.DivergenceBearish
	case !priceHigher && oscHigher:
		return model.DivergenceBullish
	default:
		return model.DivergenceNone
	}
}

// DetectPatterns looks for candlestick patterns on the last two candles.
func DetectPatterns(candles []model.Candle) []model.Pattern {
	if len(candles) < 3 {
		return nil
	}
	var out []model.Pattern
	cur := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	body := math.Abs(cur.Close - cur.Open)
	lowerWick := math.Min(cur.Close, cur.Open) - cur.Low
	upperWick := cur.High - math.Max(cur.Close, cur.Open)
	if lowerWick > 2*body && upperWick < body*0.5 {
		out = append(out, model.PatternHammer)
	}
	if body < (cur.High-cur.Low)*0.1 {
		out = append(out, model.PatternDoji)
	}

	prevBody := math.Abs(prev.Close - prev.Open)
	if cur.Close > cur.Open && prev.Close < prev.Open && body > prevBody*1.1 {
		out = append(out, model.PatternBullishEngulfing)
	}
	if cur.Close < cur.Open && prev.Close > prev.Open && body > prevBody*1.1 {
		out = append(out, model.PatternBearishEngulfing)
	}
	return out
}
