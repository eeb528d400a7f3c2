package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
)

// Input is everything the scorer needs about one instrument at one instant.
type Input struct {
	Symbol      string
	Class       model.TradeClass
	Ind         *model.IndicatorSet
	Funding     float64
	Imbalance   float64
	TakerRatio  float64
	RefChange   float64 // reference asset change %, same window as CoinChange
	CoinChange  float64
	MLProb      float64
	Macro       *model.MacroRegime // nil skips the macro adjustment
	Correlation float64
	Now         time.Time
}

// maxBonus is the most the phase, price-action, correlation and macro terms can add
// on top of the core score.
const maxBonus = 12 + 20 + 6 + 8

// minATRPct is the volatility below which no target ladder fits.
const minATRPct = 0.002

// Evaluate scores one candidate. Exactly one of the results is non-nil.
func Evaluate(in *Input, tun *config.Tunables) (*model.Signal, *model.Rejection) {
	reject := func(reason model.RejectReason, dir model.Direction, score float64, details ...string) *model.Rejection {
		r := &model.Rejection{Symbol: in.Symbol, Reason: reason, Direction: dir, Score: score, Details: details}
		log.Debug().Str("symbol", in.Symbol).Str("class", string(in.Class)).Msg("rejected: " + r.String())
		return r
	}

	ind := in.Ind
	if ind == nil || ind.Price <= 0 {
		return nil, reject(model.RejectNoPrice, "", 0)
	}

	floors := FloorsForHour(in.Now.UTC().Hour()).Scaled(tun.VolumeSpikeMult)
	volRatio := ind.VolRatio()

	bull, bear := voteDirection(in, tun.OutperformPct)
	dir, ok := directionOf(bull, bear)
	if !ok {
		return nil, reject(model.RejectNoDirection, "", 0, fmt.Sprintf("bull=%d bear=%d", bull, bear))
	}

	if volRatio < floors.HardReject {
		return nil, reject(model.RejectVolumeFloor, dir, 0,
			fmt.Sprintf("vol_ratio=%.2f < %.2f at %02d UTC", volRatio, floors.HardReject, in.Now.UTC().Hour()))
	}

	phase, phaseBonus := detectPhase(in, dir, volRatio)
	paBonus, pa := priceAction(in, dir)
	aligned, conflicting := patternCounts(ind.Patterns, dir)

	core := scoreTrend(ind, dir) +
		scoreMomentum(ind, dir) +
		scoreVolume(volRatio, floors) +
		scoreFlow(in, dir) +
		scoreDivergence(ind, dir) +
		scorePatterns(aligned, conflicting) +
		math.Min(5, in.MLProb*5)
	// no combination of bonuses lifts the candidate to the lowest tier
	if core+maxBonus < tun.Thresholds.C {
		return nil, reject(model.RejectScoreTooLow, dir, core,
			fmt.Sprintf("core=%.0f max=%.0f need %.0f", core, core+maxBonus, tun.Thresholds.C))
	}

	score := core +
		phaseBonus +
		math.Min(20, paBonus) +
		correlationAdjustment(dir, in.Correlation, in.RefChange) +
		macroAdjustment(in.Macro, dir, in.Symbol)
	score = math.Max(0, math.Min(100, score))

	corrAligned, kill := correlationGate(dir, in.Correlation, in.RefChange)
	if kill {
		return nil, reject(model.RejectCorrelationKill, dir, score,
			fmt.Sprintf("corr=%.2f ref=%+.2f%%", in.Correlation, in.RefChange))
	}
	if ind.ATR14/(ind.Price+1e-9) < minATRPct {
		return nil, reject(model.RejectVolatilityFloor, dir, score,
			fmt.Sprintf("atr=%.4f%%", ind.ATR14/ind.Price*100))
	}

	a := assess(in, dir, volRatio, floors, phase, pa, conflicting, corrAligned)
	tier, reasons := assignTier(a, score, tun.Thresholds, dir, in.Correlation, in.RefChange)
	if tier == "" {
		r := &model.Rejection{Symbol: in.Symbol, Reason: model.RejectNoTier, Direction: dir, Score: score, Details: reasons}
		log.Info().Str("symbol", in.Symbol).Str("direction", string(dir)).
			Float64("score", score).Int("criteria", a.criteria.Count()).
			Float64("vol_ratio", volRatio).Strs("reasons", reasons).Msg("no tier")
		return nil, r
	}

	entry := RoundPrice(ind.Price)
	stop := placeStop(ind, in.Class, dir)
	targets := Targets(entry, stop, dir, tun.Ladder(tier, in.Class))
	if !ValidRisk(entry, stop, dir, targets) {
		return nil, reject(model.RejectRiskDegenerate, dir, score,
			fmt.Sprintf("entry=%g stop=%g targets=%v", entry, stop, targets))
	}
	sig := &model.Signal{
		Symbol:      in.Symbol,
		Class:       in.Class,
		Direction:   dir,
		Tier:        tier,
		Score:       math.Round(score*10) / 10,
		Entry:       entry,
		Stop:        stop,
		Targets:     targets,
		Leverage:    tun.LeverageFor(tier, in.Class),
		Criteria:    a.criteria,
		CriteriaMet: a.criteria.Count(),
		Phase:       phase,
		PriceAction: pa,
		Patterns:    ind.Patterns,
		Confluences: confluences(in, dir, volRatio, phase, pa),
		Correlation: math.Round(in.Correlation*1000) / 1000,
		Outperform:  math.Round((in.CoinChange-in.RefChange)*100) / 100,
		VolRatio:    math.Round(volRatio*100) / 100,
		RSI14:       math.Round(ind.RSI14*10) / 10,
		FundingRate: in.Funding,
		Imbalance:   in.Imbalance,
		CreatedAt:   in.Now,
	}
	return sig, nil
}

// assignTier grades an assessed candidate. An empty tier comes with every failing reason.
func assignTier(a assessment, score float64, th config.Thresholds, dir model.Direction, corr, ref float64) (model.Tier, []string) {
	c := a.criteria
	n := c.Count()
	clean := !a.conflict && c.Correlation

	switch {
	case n >= 7 && score >= th.A && c.Momentum && clean:
		return model.TierA, nil
	case n >= 6 && score >= th.A && c.Trend && c.Momentum && a.volStrong && clean:
		return model.TierA, nil
	case n >= 5 && score >= th.B && c.Trend && c.Volume && clean:
		return model.TierB, nil
	case n >= 6 && score >= th.B && c.Trend && clean:
		return model.TierB, nil
	}

	against := corr > 0.60 && ((dir == model.Long && ref < -1.0) || (dir == model.Short && ref > 1.0))
	if n >= 3 && score >= th.C && (c.Trend || c.Momentum) && a.volMin && !a.conflict && !against {
		return model.TierC, nil
	}

	var reasons []string
	if n < 3 {
		reasons = append(reasons, fmt.Sprintf("criteria=%d/7 (need 3+)", n))
	}
	if score < th.C {
		reasons = append(reasons, fmt.Sprintf("score=%.0f (need %.0f+)", score, th.C))
	}
	if !c.Trend && !c.Momentum {
		reasons = append(reasons, "no trend/momentum")
	}
	if !a.volMin {
		reasons = append(reasons, "volume below minimum")
	}
	if a.conflict {
		reasons = append(reasons, "conflicting signals")
	}
	if !c.Correlation {
		reasons = append(reasons, fmt.Sprintf("correlation misaligned corr=%.2f", corr))
	}
	if against {
		reasons = append(reasons, fmt.Sprintf("reference moving against trade ref=%+.2f%%", ref))
	}
	return "", reasons
}
