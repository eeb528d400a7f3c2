package calculator

import (
	"math"

	"github.com/shopspring/decimal"

	"SignalSentinel/internal/model"
)

// CalculatePivots returns floor pivots from the previous (second to last) candle,
// rounded to 4 decimals.
func CalculatePivots(candles []model.Candle) model.Pivots {
	if len(candles) == 0 {
		return model.Pivots{}
	}
	prev := candles[len(candles)-1]
	if len(candles) > 1 {
		prev = candles[len(candles)-2]
	}
	h, l, c := prev.High, prev.Low, prev.Close
	p := (h + l + c) / 3
	return model.Pivots{
		P:  round(p, 4),
		R1: round(2*p-l, 4),
		R2: round(p+(h-l), 4),
		R3: round(h+2*(p-l), 4),
		S1: round(2*p-h, 4),
		S2: round(p-(h-l), 4),
		S3: round(l-2*(h-p), 4),
	}
}

// CalculatePOC returns the volume point of control: the midpoint of the close-price bin
// (of bins equal-width bins) carrying the most volume. Bins are right-closed and the lowest
// edge is widened slightly so the minimum close falls inside the first bin.
func CalculatePOC(candles []model.Candle, bins int) float64 {
	if len(candles) == 0 || bins <= 0 {
		return 0
	}
	mn, mx := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		mn = math.Min(mn, c.Close)
		mx = math.Max(mx, c.Close)
	}

	edges := make([]float64, bins+1)
	if mn == mx {
		if mn != 0 {
			mn -= 0.001 * math.Abs(mn)
			mx += 0.001 * math.Abs(mx)
		} else {
			mn, mx = -0.001, 0.001
		}
		for i := range edges {
			edges[i] = mn + (mx-mn)*float64(i)/float64(bins)
		}
	} else {
		for i := range edges {
			edges[i] = mn + (mx-mn)*float64(i)/float64(bins)
		}
		edges[0] -= (mx - mn) * 0.001
	}

	vol := make([]float64, bins)
	for _, c := range candles {
		for i := 0; i < bins; i++ {
			if c.Close > edges[i] && c.Close <= edges[i+1] {
				vol[i] += c.Volume
				break
			}
		}
	}
	best := 0
	for i := 1; i < bins; i++ {
		if vol[i] > vol[best] {
			best = i
		}
	}
	return (edges[best] + edges[best+1]) / 2
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
