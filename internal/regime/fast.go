package regime

import (
	"fmt"
	"time"

	"SignalSentinel/internal/model"
)

const (
	// WindowSize bounds the rolling sample window.
	WindowSize = 60

	trendThreshold = 0.003 // percentage points per sample
	panicAccel     = 0.002
	fearFloor      = 7.5
)

func velocity(samples []model.DominanceSample, pick func(model.DominanceSample) float64) float64 {
	steps := max(len(samples)-1, 1)
	return (pick(samples[len(samples)-1]) - pick(samples[0])) / float64(steps)
}

func trendOf(vel float64) model.Trend {
	switch {
	case vel > trendThreshold:
		return model.TrendRising
	case vel < -trendThreshold:
		return model.TrendFalling
	default:
		return model.TrendFlat
	}
}

func btcOf(s model.DominanceSample) float64  { return s.BTC }
func usdtOf(s model.DominanceSample) float64 { return s.USDT }

// ComputeSignal derives the fast bias from an ordered sample window. It is deterministic:
// the same window always yields the same signal apart from UpdatedAt.
func ComputeSignal(samples []model.DominanceSample, now time.Time) model.RegimeSignal {
	sig := model.RegimeSignal{
		USDTTrend:   model.TrendFlat,
		BTCTrend:    model.TrendFlat,
		SampleCount: len(samples),
		UpdatedAt:   now,
	}
	if len(samples) < 3 {
		sig.Bias = model.BiasNeutral
		sig.Reason = "Insufficient candle data"
		return sig
	}

	recent := samples[len(samples)-3:]
	sig.USDTVelocity = velocity(recent, usdtOf)
	sig.BTCVelocity = velocity(recent, btcOf)
	if len(samples) >= 5 {
		older := samples[len(samples)-5 : len(samples)-2]
		sig.USDTAccel = sig.USDTVelocity - velocity(older, usdtOf)
		sig.BTCAccel = sig.BTCVelocity - velocity(older, btcOf)
	}
	sig.USDTTrend = trendOf(sig.USDTVelocity)
	sig.BTCTrend = trendOf(sig.BTCVelocity)

	usdt := samples[len(samples)-1].USDT
	btc := samples[len(samples)-1].BTC

	switch {
	case sig.USDTTrend == model.TrendRising && sig.USDTAccel > panicAccel && usdt > fearFloor:
		sig.Bias = model.BiasBlocked
		sig.Reason = fmt.Sprintf("PANIC: USDT.D accelerating %+.4f%%/min (accel=%+.4f) @ %.3f%%", sig.USDTVelocity, sig.USDTAccel, usdt)
	case sig.USDTTrend == model.TrendRising && usdt > fearFloor:
		sig.Bias = model.BiasShortOK
		sig.Reason = fmt.Sprintf("USDT.D rising %+.4f%%/min, fear building @ %.3f%%: SHORT bias", sig.USDTVelocity, usdt)
	case sig.USDTTrend == model.TrendFalling && usdt > fearFloor:
		sig.Bias = model.BiasShortOK
		sig.Reason = fmt.Sprintf("USDT.D falling from high (%.3f%%), still elevated: cautious", usdt)
	case sig.USDTTrend == model.TrendFalling && sig.BTCTrend != model.TrendRising:
		sig.Bias = model.BiasLongOK
		sig.Reason = fmt.Sprintf("USDT.D falling %+.4f%%/min with BTC.D %s @ %.3f%%: LONG bias", sig.USDTVelocity, sig.BTCTrend, usdt)
	case sig.USDTTrend == model.TrendFalling:
		sig.Bias = model.BiasBTCLongOnly
		sig.Reason = fmt.Sprintf("USDT.D falling but BTC.D rising %+.4f%%/min: BTC/ETH longs only", sig.BTCVelocity)
	case sig.BTCTrend == model.TrendRising && sig.BTCAccel > panicAccel:
		sig.Bias = model.BiasShortOK
		sig.Reason = fmt.Sprintf("BTC.D surging %+.4f%%/min (accel=%+.4f): alts losing value, SHORT alts", sig.BTCVelocity, sig.BTCAccel)
	default:
		sig.Bias = model.BiasNeutral
		sig.Reason = fmt.Sprintf("No clear signal: USDT.D %s @ %.3f%%, BTC.D %s @ %.3f%%", sig.USDTTrend, usdt, sig.BTCTrend, btc)
	}
	return sig
}
