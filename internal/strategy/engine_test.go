package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
)

var (
	peak = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	dead = time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
)

// bullishInput is a clean long setup: full bull stack, rising MACD, bid pressure and a volume spike.
func bullishInput() *Input {
	return &Input{
		Symbol: "SOLUSDT",
		Class:  model.Day,
		Ind: &model.IndicatorSet{
			Price:        100,
			RSI14:        55,
			MACDHist:     0.5,
			MACDHistPrev: 0.3,
			BBUpper:      105,
			BBMid:        100,
			BBLower:      95,
			ATR14:        1.0,
			StochK:       50,
			VWAP:         99.5,
			EMA9:         99,
			EMA21:        98,
			EMA50:        97,
			VolCurrent:   3,
			VolSMA20:     1,
			OBV:          10,
			OBVPrev:      5,

			RSIDivergence:  model.DivergenceNone,
			MACDDivergence: model.DivergenceNone,
			Pivots:         model.Pivots{P: 100, R1: 105, S1: 95},
		},
		Imbalance:   0.25,
		TakerRatio:  1.2,
		CoinChange:  1.0,
		RefChange:   0,
		MLProb:      0.5,
		Correlation: 0.5,
		Now:         peak,
	}
}

func TestEvaluate_BullishSetup(t *testing.T) {
	sig, rej := Evaluate(bullishInput(), config.DefaultTunables())
	require.Nil(t, rej)
	require.NotNil(t, sig)

	assert.Equal(t, model.Long, sig.Direction)
	assert.Equal(t, model.TierA, sig.Tier)
	assert.Equal(t, 7, sig.CriteriaMet)
	assert.InDelta(t, 93.5, sig.Score, 1e-9)
	assert.Equal(t, model.PhaseMarkupSOS, sig.Phase)
	assert.Len(t, sig.PriceAction, 2)

	// VWAP support at 99.5 gives the tightest stop
	assert.InDelta(t, 99.2, sig.Stop, 1e-9)
	want := []float64{101.6, 102.4, 103.2, 104.4, 105.6}
	require.Len(t, sig.Targets, len(want))
	for i := range want {
		assert.InDelta(t, want[i], sig.Targets[i], 1e-9)
	}
	assert.Equal(t, 7, sig.Leverage)
	assert.Contains(t, sig.Confluences, "✅ EMA 9>21>50 bullish stack")
	assert.Contains(t, sig.Confluences, "✅ Wyckoff: Markup, Sign of Strength")
}

func TestEvaluate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		want   model.RejectReason
	}{
		{"no indicators", func(in *Input) { in.Ind = nil }, model.RejectNoPrice},
		{"zero price", func(in *Input) { in.Ind.Price = 0 }, model.RejectNoPrice},
		{"dead-hours volume", func(in *Input) {
			in.Now = dead
			in.Ind.VolCurrent = 0.1
		}, model.RejectVolumeFloor},
		{"correlated long into falling reference", func(in *Input) {
			in.Correlation = 0.85
			in.RefChange = -2.0
		}, model.RejectCorrelationKill},
		{"no volatility", func(in *Input) { in.Ind.ATR14 = 0.1 }, model.RejectVolatilityFloor},
		{"balanced vote", func(in *Input) {
			// price above VWAP (bull 1) against RSI 38 (bear 1), nothing else votes
			*in = Input{
				Symbol: "XRPUSDT", Class: model.Day, Now: peak, TakerRatio: 1,
				Ind: &model.IndicatorSet{
					Price: 100, VWAP: 99, RSI14: 38, StochK: 50, ATR14: 1,
					EMA9: 100, EMA21: 100, EMA50: 100, BBUpper: 105, BBLower: 95,
					VolCurrent: 1, VolSMA20: 1,
				},
			}
		}, model.RejectNoDirection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bullishInput()
			tt.mutate(in)
			sig, rej := Evaluate(in, config.DefaultTunables())
			assert.Nil(t, sig)
			require.NotNil(t, rej)
			assert.Equal(t, tt.want, rej.Reason)
		})
	}
}

func TestEvaluate_EarlyRejectBeforeBonuses(t *testing.T) {
	weak := func() *Input {
		in := bullishInput()
		in.Imbalance = 0.05
		in.TakerRatio = 0.95
		in.Ind.VolCurrent = 1.3
		return in
	}
	tun := config.DefaultTunables()
	tun.Thresholds = config.Thresholds{A: 100, B: 100, C: 100}

	// core 46.5 plus every bonus still falls short of 100
	sig, rej := Evaluate(weak(), tun)
	assert.Nil(t, sig)
	require.NotNil(t, rej)
	assert.Equal(t, model.RejectScoreTooLow, rej.Reason)
	assert.InDelta(t, 46.5, rej.Score, 1e-9)

	_, rej = Evaluate(weak(), config.DefaultTunables())
	if rej != nil {
		assert.NotEqual(t, model.RejectScoreTooLow, rej.Reason)
	}
}

func TestAssignTier_CriteriaCount(t *testing.T) {
	th := config.Thresholds{A: 80, B: 60, C: 40}
	five := assessment{
		criteria: model.Criteria{Trend: true, Momentum: true, Volume: true, Structure: true, Correlation: true},
		volMin:   true,
	}
	tier, _ := assignTier(five, 70, th, model.Long, 0.5, 0)
	assert.Equal(t, model.TierB, tier)

	four := five
	four.criteria.Structure = false
	tier, _ = assignTier(four, 70, th, model.Long, 0.5, 0)
	assert.NotEqual(t, model.TierB, tier)
	assert.Equal(t, model.TierC, tier)
}

func TestAssignTier_ListsEveryFailure(t *testing.T) {
	th := config.Thresholds{A: 80, B: 60, C: 40}
	a := assessment{criteria: model.Criteria{Structure: true}, conflict: true}
	tier, reasons := assignTier(a, 30, th, model.Long, 0.5, 0)
	assert.Empty(t, tier)
	assert.Equal(t, []string{
		"criteria=1/7 (need 3+)",
		"score=30 (need 40+)",
		"no trend/momentum",
		"volume below minimum",
		"conflicting signals",
		"correlation misaligned corr=0.50",
	}, reasons)
}

func TestAssignTier_CorrelatedAgainstReference(t *testing.T) {
	th := config.Thresholds{A: 80, B: 60, C: 40}
	a := assessment{
		criteria: model.Criteria{Trend: true, Momentum: true, Structure: true, Location: true},
		volMin:   true,
	}
	tier, _ := assignTier(a, 50, th, model.Long, 0.7, -1.2)
	assert.Empty(t, tier)
	tier, _ = assignTier(a, 50, th, model.Long, 0.7, -0.9)
	assert.Equal(t, model.TierC, tier)
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []float64{110, 117.5, 125}, Targets(100, 95, model.Long, []float64{2, 3.5, 5}))
	assert.Equal(t, []float64{90, 85}, Targets(100, 105, model.Short, []float64{2, 3}))
}

func TestTargets_MonotonicFromTwoR(t *testing.T) {
	tun := config.DefaultTunables()
	for _, tier := range model.Tiers {
		for _, class := range model.Classes {
			ts := Targets(50, 48, model.Long, tun.Ladder(tier, class))
			assert.GreaterOrEqual(t, ts[0]-50, 2*2.0-1e-9, "%s/%s first target", tier, class)
			for i := 1; i < len(ts); i++ {
				assert.Greater(t, ts[i], ts[i-1])
			}
			ts = Targets(50, 52, model.Short, tun.Ladder(tier, class))
			for i := 1; i < len(ts); i++ {
				assert.Less(t, ts[i], ts[i-1])
			}
		}
	}
}

func TestRoundPrice(t *testing.T) {
	assert.Equal(t, 101.235, RoundPrice(101.23456))
	assert.Equal(t, 64123.5, RoundPrice(64123.456))
	assert.Equal(t, 0.0000123457, RoundPrice(0.0000123456789))
	assert.Equal(t, 0.0, RoundPrice(0))
}

func TestValidRisk(t *testing.T) {
	assert.True(t, ValidRisk(100, 98, model.Long, []float64{104, 106}))
	assert.True(t, ValidRisk(100, 102, model.Short, []float64{96, 94}))
	assert.False(t, ValidRisk(100, 100, model.Long, []float64{104}), "stop on entry")
	assert.False(t, ValidRisk(100, 101, model.Long, []float64{104}), "stop above a long entry")
	assert.False(t, ValidRisk(100, 102, model.Short, []float64{96, 96}), "colliding targets")
	assert.False(t, ValidRisk(100, 98, model.Long, []float64{100}), "target on entry")
}

func TestRiskLevels_SubCentPrice(t *testing.T) {
	ind := &model.IndicatorSet{Price: 1.23e-5, ATR14: 3.69e-8}
	entry := RoundPrice(ind.Price)
	assert.InDelta(t, 1.23e-5, entry, 1e-15)

	for _, dir := range []model.Direction{model.Long, model.Short} {
		stop := placeStop(ind, model.Scalp, dir)
		ts := Targets(entry, stop, dir, []float64{2.0, 2.8, 3.8})
		assert.NotEqual(t, entry, stop, dir)
		assert.True(t, ValidRisk(entry, stop, dir, ts), "%s stop=%g targets=%v", dir, stop, ts)
	}
}

func TestEvaluate_CollidingTargetsRejected(t *testing.T) {
	tun := config.DefaultTunables()
	tun.Targets[model.TierA][model.Day] = []float64{2, 2}
	sig, rej := Evaluate(bullishInput(), tun)
	assert.Nil(t, sig)
	require.NotNil(t, rej)
	assert.Equal(t, model.RejectRiskDegenerate, rej.Reason)
}

func TestPlaceStop(t *testing.T) {
	ind := &model.IndicatorSet{Price: 100, ATR14: 1, BBUpper: 103, BBLower: 97, VWAP: 100.5,
		Pivots: model.Pivots{R1: 105, S1: 95}}
	// candidates 101.5, 105.3, 103.2 and VWAP 100.8
	assert.InDelta(t, 100.8, placeStop(ind, model.Scalp, model.Short), 1e-9)
	// swing skips VWAP
	assert.InDelta(t, 102.5, placeStop(ind, model.Swing, model.Short), 1e-9)
	// candidates 98.5, 94.7, 96.8
	assert.InDelta(t, 98.5, placeStop(ind, model.Scalp, model.Long), 1e-9)
}

func TestPlaceStop_WithinFifteenPercent(t *testing.T) {
	ind := &model.IndicatorSet{Price: 100, ATR14: 20}
	for _, class := range model.Classes {
		long := placeStop(ind, class, model.Long)
		assert.Less(t, long, 100.0)
		assert.GreaterOrEqual(t, long, 85.0)
		short := placeStop(ind, class, model.Short)
		assert.Greater(t, short, 100.0)
		assert.LessOrEqual(t, short, 115.0)
	}
}

func TestFloorsForHour(t *testing.T) {
	tests := []struct {
		hour int
		hard float64
	}{
		{3, 0.20}, {6, 0.30}, {7, 0.30}, {8, 0.50}, {16, 0.50},
		{17, 0.30}, {19, 0.30}, {20, 0.20}, {23, 0.20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.hard, FloorsForHour(tt.hour).HardReject, "hour %d", tt.hour)
	}
}

func TestVolumeFloors_Scaled(t *testing.T) {
	base := FloorsForHour(12)
	assert.Equal(t, base, base.Scaled(1.5))
	assert.Equal(t, base, base.Scaled(0))

	got := base.Scaled(3.0)
	assert.InDelta(t, 0.50, got.HardReject, 1e-9)
	assert.InDelta(t, 2.40, got.Minimum, 1e-9)
	assert.InDelta(t, 3.00, got.Confirmed, 1e-9)
	assert.InDelta(t, 4.00, got.Strong, 1e-9)
}

func TestEvaluate_VolumeSpikeMultRaisesBands(t *testing.T) {
	tun := config.DefaultTunables()
	tun.VolumeSpikeMult = 3.0
	sig, rej := Evaluate(bullishInput(), tun)
	require.Nil(t, rej)
	require.NotNil(t, sig)
	// vol ratio 3.0 drops from the top band (15) to confirmed (8)
	assert.InDelta(t, 86.5, sig.Score, 1e-9)
	assert.True(t, sig.Criteria.Volume)
}

func TestCorrelationGate(t *testing.T) {
	tests := []struct {
		dir           model.Direction
		corr, ref     float64
		aligned, kill bool
	}{
		{model.Long, 0.85, -2.0, false, true},
		{model.Long, 0.70, -2.0, false, false},
		{model.Long, 0.70, -0.5, false, false},
		{model.Long, 0.70, 0.5, true, false},
		{model.Long, 0.20, -3.0, true, false},
		{model.Short, 0.85, 2.0, false, true},
		{model.Short, 0.65, 0.4, false, false},
		{model.Short, 0.65, -1.0, true, false},
	}
	for _, tt := range tests {
		aligned, kill := correlationGate(tt.dir, tt.corr, tt.ref)
		assert.Equal(t, tt.aligned, aligned, "%s corr=%.2f ref=%.1f", tt.dir, tt.corr, tt.ref)
		assert.Equal(t, tt.kill, kill, "%s corr=%.2f ref=%.1f", tt.dir, tt.corr, tt.ref)
	}
}

func TestMacroAdjustment(t *testing.T) {
	btcSeason := &model.MacroRegime{Category: model.RiskOnBTC}
	assert.Equal(t, 6.0, macroAdjustment(btcSeason, model.Long, "BTCUSDT"))
	assert.Equal(t, 6.0, macroAdjustment(btcSeason, model.Long, "ETHUSDT"))
	assert.Equal(t, -6.0, macroAdjustment(btcSeason, model.Long, "SOLUSDT"))

	riskOff := &model.MacroRegime{Category: model.RiskOff}
	assert.Equal(t, -10.0, macroAdjustment(riskOff, model.Long, "SOLUSDT"))
	assert.Equal(t, 8.0, macroAdjustment(riskOff, model.Short, "SOLUSDT"))
	assert.Zero(t, macroAdjustment(nil, model.Long, "SOLUSDT"))
}

func TestPatternCounts(t *testing.T) {
	pats := []model.Pattern{model.PatternHammer, model.PatternDoji, model.PatternBearishEngulfing}
	aligned, conflicting := patternCounts(pats, model.Long)
	assert.Equal(t, 1, aligned)
	assert.Equal(t, 1, conflicting)
	assert.Equal(t, 0.0, scorePatterns(aligned, conflicting))
	assert.Equal(t, 10.0, scorePatterns(3, 0))
}
