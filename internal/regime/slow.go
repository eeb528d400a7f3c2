package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/model"
)

// Fallback constants used when no source and no last-known-good value is available.
const (
	FallbackUSDT = 8.0
	FallbackBTC  = 57.9

	SourceLastKnown = "last_known"
	SourceConstant  = "constant"
)

// BuildMacro maps dominance levels to the macro regime ladder.
func BuildMacro(btc, usdt float64) model.MacroRegime {
	m := model.MacroRegime{BTC: btc, USDT: usdt, AllowLong: true, AllowShort: true}
	switch {
	case usdt > 8.0:
		m.Category, m.AllowLong = model.RiskOff, false
		m.Bias = fmt.Sprintf("RISK-OFF: USDT.D %.2f%% (extreme fear), avoid longs", usdt)
	case usdt > 7.5:
		m.Category, m.AllowLong = model.RiskOff, false
		m.Bias = fmt.Sprintf("CAUTION: USDT.D %.2f%% (fear elevated), shorts preferred", usdt)
	case usdt <= 5.5 && btc < 48:
		m.Category, m.AllowShort = model.RiskOnAlt, false
		m.Bias = fmt.Sprintf("ALTSEASON: USDT.D %.2f%% low, BTC.D %.1f%%", usdt, btc)
	case usdt < 6.5 && btc > 58:
		m.Category = model.RiskOnBTC
		m.Bias = fmt.Sprintf("BTC SEASON: USDT.D %.2f%%, BTC.D %.1f%% dominant", usdt, btc)
	default:
		m.Category = model.Neutral
		m.Bias = fmt.Sprintf("NEUTRAL: USDT.D %.2f%%, BTC.D %.1f%%", usdt, btc)
	}
	return m
}

// resolveFast returns the first reading where one source supplies both values.
func resolveFast(ctx context.Context, sources []Source, now time.Time) (model.DominanceReading, bool) {
	for _, s := range sources {
		r, err := s.Fetch(ctx)
		if err != nil {
			log.Debug().Err(err).Str("source", s.Name()).Msg("fast dominance source failed")
			continue
		}
		if validBTC(r.BTC) && validUSDT(r.USDT) {
			return model.DominanceReading{
				BTC: r.BTC, USDT: r.USDT,
				BTCSource: s.Name(), USDTSource: s.Name(),
				FetchedAt: now,
			}, true
		}
	}
	return model.DominanceReading{}, false
}

// resolveSlow walks the chain, letting each source fill whichever value is still missing.
// Values still missing after the chain come from last (if any) and then the constants,
// and mark the reading as estimated.
func resolveSlow(ctx context.Context, sources []Source, last *model.DominanceReading, now time.Time) model.DominanceReading {
	var out model.DominanceReading
	for _, s := range sources {
		if out.BTCSource != "" && out.USDTSource != "" {
			break
		}
		r, err := s.Fetch(ctx)
		if err != nil {
			log.Debug().Err(err).Str("source", s.Name()).Msg("dominance source failed")
			continue
		}
		if out.BTCSource == "" && validBTC(r.BTC) {
			out.BTC, out.BTCSource = r.BTC, s.Name()
		}
		if out.USDTSource == "" && validUSDT(r.USDT) {
			out.USDT, out.USDTSource = r.USDT, s.Name()
		}
	}

	if out.USDTSource == "" {
		out.Estimated = true
		if last != nil && validUSDT(last.USDT) {
			out.USDT, out.USDTSource = last.USDT, SourceLastKnown
		} else {
			out.USDT, out.USDTSource = FallbackUSDT, SourceConstant
		}
		log.Warn().Float64("usdt", out.USDT).Str("source", out.USDTSource).Msg("USDT dominance unavailable from every source, using estimate")
	}
	if out.BTCSource == "" {
		out.Estimated = true
		if last != nil && validBTC(last.BTC) {
			out.BTC, out.BTCSource = last.BTC, SourceLastKnown
		} else {
			out.BTC, out.BTCSource = FallbackBTC, SourceConstant
		}
		log.Warn().Float64("btc", out.BTC).Str("source", out.BTCSource).Msg("BTC dominance unavailable from every source, using estimate")
	}
	out.FetchedAt = now
	return out
}
