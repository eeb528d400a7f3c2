package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"SignalSentinel/internal/model"
)

// VolumeFloors are the volume-ratio bands for one time-of-day window.
type VolumeFloors struct {
	HardReject float64
	Minimum    float64
	Confirmed  float64
	Strong     float64
}

// FloorsForHour returns the volume floors for a UTC hour. Off-hours bars are naturally
// far below a 20-bar average that spans the active session, so the bands relax.
func FloorsForHour(hour int) VolumeFloors {
	switch {
	case hour >= 8 && hour < 17:
		return VolumeFloors{HardReject: 0.50, Minimum: 1.20, Confirmed: 1.50, Strong: 2.00}
	case (hour >= 6 && hour < 8) || (hour >= 17 && hour < 20):
		return VolumeFloors{HardReject: 0.30, Minimum: 0.80, Confirmed: 1.20, Strong: 1.80}
	default:
		return VolumeFloors{HardReject: 0.20, Minimum: 0.50, Confirmed: 0.80, Strong: 1.50}
	}
}

// baseSpikeMult is the spike multiple the built-in floors are calibrated to.
const baseSpikeMult = 1.5

// Scaled stretches the confirmation bands by spike/baseSpikeMult. The hard reject
// floor does not move.
func (f VolumeFloors) Scaled(spike float64) VolumeFloors {
	if spike <= 0 {
		return f
	}
	k := spike / baseSpikeMult
	f.Minimum *= k
	f.Confirmed *= k
	f.Strong *= k
	return f
}

// voteDirection tallies bullish and bearish points.
func voteDirection(in *Input, outperformPct float64) (bull, bear int) {
	ind := in.Ind
	switch {
	case ind.BullishStack():
		bull += 2
	case ind.BearishStack():
		bear += 2
	}

	if ind.Price > ind.VWAP {
		bull++
	} else {
		bear++
	}

	switch rsi := ind.RSI14; {
	case rsi < 35:
		bull += 2
	case rsi > 65:
		bear += 2
	case rsi > 40 && rsi < 60:
	case rsi > 50:
		bull++
	default:
		bear++
	}

	switch {
	case ind.MACDHist > 0 && ind.MACDHist > ind.MACDHistPrev:
		bull += 2
	case ind.MACDHist < 0 && ind.MACDHist < ind.MACDHistPrev:
		bear += 2
	}

	switch {
	case ind.StochK < 20:
		bull++
	case ind.StochK > 80:
		bear++
	}

	switch {
	case in.Imbalance > 0.15:
		bull += 2
	case in.Imbalance < -0.15:
		bear += 2
	}

	switch {
	case in.TakerRatio > 1.1:
		bull++
	case in.TakerRatio < 0.9:
		bear++
	}

	// extreme funding is contrarian
	switch {
	case in.Funding > 0.001:
		bear++
	case in.Funding < -0.001:
		bull++
	}

	switch out := in.CoinChange - in.RefChange; {
	case out > outperformPct:
		bull += 2
	case out < -outperformPct:
		bear++
	}

	switch {
	case ind.RSIDivergence == model.DivergenceBullish || ind.MACDDivergence == model.DivergenceBullish:
		bull += 3
	case ind.RSIDivergence == model.DivergenceBearish || ind.MACDDivergence == model.DivergenceBearish:
		bear += 3
	}

	// a squeeze reinforces whichever side leads
	if ind.Price > 0 && (ind.BBUpper-ind.BBLower)/ind.Price < 0.03 {
		if bull >= bear {
			bull++
		} else {
			bear++
		}
	}
	return bull, bear
}

func directionOf(bull, bear int) (model.Direction, bool) {
	total := bull + bear
	if total == 0 {
		return "", false
	}
	ratio := float64(bull) / float64(total)
	switch {
	case ratio >= 0.54:
		return model.Long, true
	case ratio <= 0.46:
		return model.Short, true
	}
	return "", false
}

func detectPhase(in *Input, dir model.Direction, volRatio float64) (model.Phase, float64) {
	ind := in.Ind
	obvRising := ind.OBV > ind.OBVPrev
	switch {
	case dir == model.Long && ind.RSI14 < 35 && volRatio >= 1.5 && obvRising && in.Imbalance > -0.1:
		return model.PhaseAccumulationSpring, 12
	case dir == model.Long && ind.BullishStack() && volRatio >= 1.5 && ind.Price > ind.VWAP && obvRising:
		return model.PhaseMarkupSOS, 10
	case dir == model.Short && ind.RSI14 > 65 && volRatio < 1.2 && !obvRising && ind.RSIDivergence == model.DivergenceBearish:
		return model.PhaseDistributionUTAD, 12
	case dir == model.Short && ind.BearishStack() && volRatio >= 1.5 && ind.Price < ind.VWAP && !obvRising:
		return model.PhaseMarkdownSOW, 10
	}
	return model.PhaseNone, 0
}

// priceAction returns the uncapped bonus and the labels of every matched setup.
func priceAction(in *Input, dir model.Direction) (float64, []string) {
	ind := in.Ind
	var bonus float64
	var labels []string
	add := func(pts float64, label string) {
		bonus += pts
		labels = append(labels, label)
	}
	long := dir == model.Long

	switch {
	case long && ind.Price < ind.BBLower*1.003 && ind.RSI14 < 45:
		add(8, "Liquidity sweep, stop hunt long")
	case !long && ind.Price > ind.BBUpper*0.997 && ind.RSI14 > 55:
		add(8, "Liquidity sweep, stop hunt short")
	}

	if ind.ATR14/(ind.Price+1e-9) > 0.008 {
		switch {
		case long && ind.Price < ind.VWAP:
			add(6, "FVG fill, price below VWAP after expansion")
		case !long && ind.Price > ind.VWAP:
			add(6, "FVG fill, price above VWAP after expansion")
		}
	}

	switch {
	case long && ind.Pivots.R1 != 0 && ind.Price > ind.Pivots.R1:
		add(5, "Break of structure above R1")
	case !long && ind.Pivots.S1 != 0 && ind.Price < ind.Pivots.S1:
		add(5, "Break of structure below S1")
	}

	switch {
	case long && in.Imbalance > 0.20:
		add(6, fmt.Sprintf("Order block bid imbalance %+.2f", in.Imbalance))
	case !long && in.Imbalance < -0.20:
		add(6, fmt.Sprintf("Order block ask imbalance %+.2f", in.Imbalance))
	}

	switch {
	case long && ind.BullishStack() && ind.MACDHist > 0:
		add(5, "Trend continuation, EMAs and MACD aligned bullish")
	case !long && ind.BearishStack() && ind.MACDHist < 0:
		add(5, "Trend continuation, EMAs and MACD aligned bearish")
	}
	return bonus, labels
}

func scoreTrend(ind *model.IndicatorSet, dir model.Direction) float64 {
	var s float64
	if dir == model.Long {
		if ind.EMA9 > ind.EMA21 {
			s += 7
		}
		if ind.EMA21 > ind.EMA50 {
			s += 7
		}
		if ind.Price > ind.VWAP {
			s += 6
		}
		return s
	}
	if ind.EMA9 < ind.EMA21 {
		s += 7
	}
	if ind.EMA21 < ind.EMA50 {
		s += 7
	}
	if ind.Price < ind.VWAP {
		s += 6
	}
	return s
}

func scoreMomentum(ind *model.IndicatorSet, dir model.Direction) float64 {
	var s float64
	rsi := ind.RSI14
	if dir == model.Long {
		if ind.MACDHist > 0 && ind.MACDHist > ind.MACDHistPrev {
			s += 10
		}
		switch {
		case rsi >= 35 && rsi <= 65:
			s += 8
		case rsi < 35:
			s += 4
		}
		if rsi > 50 {
			s += 2
		}
		return s
	}
	if ind.MACDHist < 0 && ind.MACDHist < ind.MACDHistPrev {
		s += 10
	}
	switch {
	case rsi >= 35 && rsi <= 65:
		s += 8
	case rsi > 65:
		s += 4
	}
	if rsi < 50 {
		s += 2
	}
	return s
}

func scoreVolume(volRatio float64, f VolumeFloors) float64 {
	switch {
	case volRatio >= f.Strong*1.25:
		return 15
	case volRatio >= f.Strong:
		return 12
	case volRatio >= f.Confirmed:
		return 8
	case volRatio >= f.Minimum:
		return 4
	default:
		return 0
	}
}

func scoreFlow(in *Input, dir model.Direction) float64 {
	var s float64
	if dir == model.Long {
		if in.Imbalance > 0.1 {
			s += 8
		}
		if in.TakerRatio > 1.0 {
			s += 7
		}
		return s
	}
	if in.Imbalance < -0.1 {
		s += 8
	}
	if in.TakerRatio < 1.0 {
		s += 7
	}
	return s
}

func scoreDivergence(ind *model.IndicatorSet, dir model.Direction) float64 {
	want := model.DivergenceBullish
	if dir == model.Short {
		want = model.DivergenceBearish
	}
	if ind.RSIDivergence == want || ind.MACDDivergence == want {
		return 15
	}
	return 0
}

// patternCounts splits detected patterns into those that agree and those that oppose dir.
func patternCounts(patterns []model.Pattern, dir model.Direction) (aligned, conflicting int) {
	for _, p := range patterns {
		switch {
		case dir == model.Long && p.Bullish(), dir == model.Short && p.Bearish():
			aligned++
		case dir == model.Long && p.Bearish(), dir == model.Short && p.Bullish():
			conflicting++
		}
	}
	return aligned, conflicting
}

func scorePatterns(aligned, conflicting int) float64 {
	return math.Min(10, float64(aligned*5)) - float64(conflicting*5)
}

// correlationAdjustment rewards riding the reference asset and penalizes fighting it.
func correlationAdjustment(dir model.Direction, corr, ref float64) float64 {
	if dir == model.Long {
		switch {
		case corr > 0.75 && ref > 0:
			return 6
		case corr > 0.75 && ref < -0.5:
			return -8
		case corr < 0.25 && ref < 0:
			return 4
		}
		return 0
	}
	switch {
	case corr > 0.75 && ref < -0.5:
		return 6
	case corr > 0.75 && ref > 0.5:
		return -8
	case corr < 0.25 && ref > 0:
		return 4
	}
	return 0
}

// baseAsset strips the quote suffix from a perpetual symbol.
func baseAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "USDT", "")
	return strings.ReplaceAll(s, "PERP", "")
}

func macroAdjustment(m *model.MacroRegime, dir model.Direction, symbol string) float64 {
	if m == nil {
		return 0
	}
	switch {
	case m.Category == model.RiskOnAlt && dir == model.Long:
		return 8
	case m.Category == model.RiskOnBTC && dir == model.Long:
		if b := baseAsset(symbol); b == "BTC" || b == "ETH" {
			return 6
		}
		return -6
	case m.Category == model.RiskOff && dir == model.Short:
		return 8
	case m.Category == model.RiskOff && dir == model.Long:
		return -10
	}
	return 0
}

// correlationGate returns whether the trade is aligned with the reference asset and
// whether the reference move is strong enough to kill it outright.
func correlationGate(dir model.Direction, corr, ref float64) (aligned, kill bool) {
	if dir == model.Long {
		switch {
		case corr > 0.60 && ref < -0.8:
			return false, corr > 0.75 && ref < -1.5
		case corr > 0.60 && ref < -0.3:
			return false, false
		}
		return true, false
	}
	switch {
	case corr > 0.60 && ref > 0.8:
		return false, corr > 0.75 && ref > 1.5
	case corr > 0.60 && ref > 0.3:
		return false, false
	}
	return true, false
}

type assessment struct {
	criteria  model.Criteria
	volStrong bool
	volMin    bool
	conflict  bool
}

func assess(in *Input, dir model.Direction, volRatio float64, f VolumeFloors, phase model.Phase, pa []string, conflicting int, aligned bool) assessment {
	ind := in.Ind
	long := dir == model.Long
	price := ind.Price

	var c model.Criteria
	c.Trend = ind.BullishStack() || ind.BearishStack()
	c.Momentum = (long && ind.RSI14 >= 35 && ind.RSI14 <= 68) || (!long && ind.RSI14 >= 32 && ind.RSI14 <= 65)
	c.Volume = volRatio >= f.Confirmed
	c.Structure = phase != model.PhaseNone || len(pa) > 0 ||
		ind.RSIDivergence != model.DivergenceNone || ind.MACDDivergence != model.DivergenceNone
	c.Location = math.Abs(price-ind.VWAP)/(price+1e-9) < 0.012 ||
		(long && ind.Pivots.S1 > 0) ||
		(!long && ind.Pivots.R1 > 0) ||
		math.Abs(in.Imbalance) > 0.15 ||
		(long && price <= ind.BBLower*1.005) ||
		(!long && price >= ind.BBUpper*0.995)
	c.Flow = (long && in.Imbalance > 0.10 && in.TakerRatio > 1.0) ||
		(!long && in.Imbalance < -0.10 && in.TakerRatio < 1.0)
	c.Correlation = aligned

	conflict := (long && ind.RSI14 > 72) ||
		(!long && ind.RSI14 < 28) ||
		(long && ind.BearishStack()) ||
		(!long && ind.BullishStack()) ||
		conflicting > 0

	return assessment{
		criteria:  c,
		volStrong: volRatio >= f.Strong,
		volMin:    volRatio >= f.Minimum,
		conflict:  conflict,
	}
}

var atrBuffer = map[model.TradeClass]float64{
	model.Scalp: 0.5,
	model.Day:   1.0,
	model.Swing: 1.5,
}

// placeStop picks the tightest structural stop on the loss side, never further than 15%.
func placeStop(ind *model.IndicatorSet, class model.TradeClass, dir model.Direction) float64 {
	entry, atr := RoundPrice(ind.Price), ind.ATR14
	places := pricePlaces(entry)
	buf := atrBuffer[class]
	intraday := class == model.Scalp || class == model.Day
	fallback := atr * (buf + 1)

	if dir == model.Long {
		candidates := []float64{entry - fallback}
		if s1 := ind.Pivots.S1; s1 > 0 && s1 < entry {
			candidates = append(candidates, s1-atr*0.3)
		}
		if bb := ind.BBLower; bb > 0 && bb < entry {
			candidates = append(candidates, bb-atr*0.2)
		}
		if vwap := ind.VWAP; intraday && vwap > 0 && vwap < entry*0.998 {
			candidates = append(candidates, vwap-atr*0.3)
		}
		sl, found := 0.0, false
		for _, c := range candidates {
			if c > 0 && c < entry && (!found || c > sl) {
				sl, found = c, true
			}
		}
		if !found {
			sl = entry - fallback
		}
		return roundTo(math.Max(sl, entry*0.85), places)
	}

	candidates := []float64{entry + fallback}
	if r1 := ind.Pivots.R1; r1 > entry {
		candidates = append(candidates, r1+atr*0.3)
	}
	if bb := ind.BBUpper; bb > entry {
		candidates = append(candidates, bb+atr*0.2)
	}
	if vwap := ind.VWAP; intraday && vwap > entry*1.002 {
		candidates = append(candidates, vwap+atr*0.3)
	}
	sl, found := 0.0, false
	for _, c := range candidates {
		if c > entry && (!found || c < sl) {
			sl, found = c, true
		}
	}
	if !found {
		sl = entry + fallback
	}
	return roundTo(math.Min(sl, entry*1.15), places)
}

// Targets projects entry by risk multiples on the profit side, on the entry's price grid.
func Targets(entry, stop float64, dir model.Direction, ladder []float64) []float64 {
	risk := math.Abs(entry - stop)
	places := pricePlaces(entry)
	out := make([]float64, 0, len(ladder))
	for _, m := range ladder {
		if dir == model.Long {
			out = append(out, roundTo(entry+risk*m, places))
		} else {
			out = append(out, roundTo(entry-risk*m, places))
		}
	}
	return out
}

// ValidRisk reports whether stop sits strictly on the loss side of entry and every
// target strictly advances in the trade direction.
func ValidRisk(entry, stop float64, dir model.Direction, targets []float64) bool {
	sign := 1.0
	if dir == model.Short {
		sign = -1
	}
	if (entry-stop)*sign <= 0 {
		return false
	}
	prev := entry
	for _, t := range targets {
		if (t-prev)*sign <= 0 {
			return false
		}
		prev = t
	}
	return true
}

func confluences(in *Input, dir model.Direction, volRatio float64, phase model.Phase, pa []string) []string {
	ind := in.Ind
	out := []string{}
	add := func(cond bool, s string) {
		if cond {
			out = append(out, "✅ "+s)
		}
	}
	outperform := in.CoinChange - in.RefChange

	if dir == model.Long {
		add(ind.BullishStack(), "EMA 9>21>50 bullish stack")
		add(ind.Price > ind.VWAP, "Price above VWAP")
		add(ind.MACDHist > ind.MACDHistPrev && ind.MACDHist > 0, "MACD histogram rising")
		add(ind.RSI14 < 35, "RSI oversold bounce")
		add(ind.RSIDivergence == model.DivergenceBullish, "RSI bullish divergence")
		add(ind.MACDDivergence == model.DivergenceBullish, "MACD bullish divergence")
		add(in.Imbalance > 0.15, fmt.Sprintf("Bid pressure %.1f%%", in.Imbalance*100))
		add(volRatio > 2, fmt.Sprintf("Volume spike %.1fx avg", volRatio))
		add(outperform > 1.5, fmt.Sprintf("Outperforming BTC by %.1f%%", outperform))
		add(in.Funding < -0.001, "Negative funding (shorts squeezable)")
	} else {
		add(ind.BearishStack(), "EMA 9<21<50 bearish stack")
		add(ind.Price < ind.VWAP, "Price below VWAP")
		add(ind.MACDHist < ind.MACDHistPrev && ind.MACDHist < 0, "MACD histogram falling")
		add(ind.RSI14 > 65, "RSI overbought rejection")
		add(ind.RSIDivergence == model.DivergenceBearish, "RSI bearish divergence")
		add(ind.MACDDivergence == model.DivergenceBearish, "MACD bearish divergence")
		add(in.Imbalance < -0.15, fmt.Sprintf("Ask pressure %.1f%%", math.Abs(in.Imbalance)*100))
		add(volRatio > 2, fmt.Sprintf("Volume spike %.1fx avg", volRatio))
		add(in.Funding > 0.001, "Positive funding (longs squeezable)")
	}

	add(phase != model.PhaseNone, "Wyckoff: "+phase.Label())
	for _, l := range pa {
		add(true, "PA: "+l)
	}

	// Doji reads as indecision and is shown for either side
	for _, p := range ind.Patterns {
		switch {
		case dir == model.Long && (p.Bullish() || p == model.PatternDoji):
			add(true, "Pattern: "+string(p))
		case dir == model.Short && (p.Bearish() || p == model.PatternDoji):
			add(true, "Pattern: "+string(p))
		case dir == model.Short && p.Bullish():
			out = append(out, "⚠️ Counter-pattern: "+string(p))
		}
	}
	return out
}

// priceDigits is the number of significant digits kept on emitted prices.
const priceDigits = 6

// pricePlaces returns the decimal places that keep priceDigits significant digits of v.
func pricePlaces(v float64) int32 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return priceDigits
	}
	return int32(priceDigits - 1 - int(math.Floor(math.Log10(math.Abs(v)))))
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundPrice rounds v to priceDigits significant digits.
func RoundPrice(v float64) float64 {
	return roundTo(v, pricePlaces(v))
}
