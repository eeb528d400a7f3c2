package predictor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/model"
)

func vector(rsi float64) []float64 {
	f := make([]float64, FeatureCount)
	f[0] = rsi
	f[11] = 60
	return f
}

func TestLogisticModel_UntrainedIsNeutral(t *testing.T) {
	m := NewLogisticModel(0)
	ctx := context.Background()
	assert.Equal(t, 0.5, m.Estimate(ctx, vector(30)))

	for i := 0; i < MinSamples-1; i++ {
		require.NoError(t, m.RecordOutcome(ctx, vector(float64(i)), i%2))
	}
	ok, err := m.Retrain(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0.5, m.Estimate(ctx, vector(30)))
	assert.True(t, m.LastTrained().IsZero())
}

func TestLogisticModel_LearnsSeparableHistory(t *testing.T) {
	m := NewLogisticModel(0)
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	// low RSI wins, high RSI loses
	for i := 0; i < 60; i++ {
		rsi, label := 20+float64(i%10), model.OutcomeWin
		if i%2 == 1 {
			rsi, label = 70+float64(i%10), model.OutcomeLoss
		}
		require.NoError(t, m.RecordOutcome(ctx, vector(rsi), label))
	}
	ok, err := m.Retrain(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Greater(t, m.Estimate(ctx, vector(25)), 0.8)
	assert.Less(t, m.Estimate(ctx, vector(75)), 0.2)
	assert.Equal(t, 0.5, m.Estimate(ctx, []float64{1, 2}), "wrong length is neutral")
	assert.Equal(t, fixed, m.LastTrained())
}

func TestLogisticModel_RecordOutcomeValidates(t *testing.T) {
	m := NewLogisticModel(0)
	ctx := context.Background()
	assert.Error(t, m.RecordOutcome(ctx, []float64{1}, 1))
	assert.Error(t, m.RecordOutcome(ctx, vector(50), 2))
	assert.Zero(t, m.Samples())
}

func TestLogisticModel_Load(t *testing.T) {
	m := NewLogisticModel(0)
	n := m.Load([]model.OutcomeRecord{
		{Features: vector(30), Outcome: 1},
		{Features: []float64{1, 2, 3}, Outcome: 0},
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, m.Samples())
}

func TestLogisticModel_HistoryIsBounded(t *testing.T) {
	m := NewLogisticModel(0)
	m.maxHistory = 4
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.RecordOutcome(ctx, vector(float64(i)), i%2))
	}
	assert.Equal(t, 4, m.Samples())
	assert.Equal(t, 6.0, m.x[0][0], "oldest samples dropped first")
	assert.Equal(t, []float64{0, 1, 0, 1}, m.y)

	records := make([]model.OutcomeRecord, 6)
	for i := range records {
		records[i] = model.OutcomeRecord{Features: vector(float64(100 + i)), Outcome: 1}
	}
	assert.Equal(t, 6, m.Load(records))
	assert.Equal(t, 4, m.Samples())
	assert.Equal(t, 102.0, m.x[0][0])
	assert.Equal(t, MaxHistory, NewLogisticModel(0).maxHistory)
}

type fixedEstimator float64

func (f fixedEstimator) Estimate(context.Context, []float64) float64         { return float64(f) }
func (f fixedEstimator) RecordOutcome(context.Context, []float64, int) error { return nil }
func (f fixedEstimator) Samples() int                                        { return 100 }

type stubAdvisor struct {
	p     float64
	err   error
	calls int
}

func (a *stubAdvisor) Advise(context.Context, []float64, float64) (float64, error) {
	a.calls++
	return a.p, a.err
}

func TestProbability(t *testing.T) {
	ctx := context.Background()

	adv := &stubAdvisor{p: 0.9}
	assert.InDelta(t, 0.9*0.6+0.5*0.4, Probability(ctx, fixedEstimator(0.5), adv, nil), 1e-9)
	assert.Equal(t, 1, adv.calls)

	// outside the uncertain band the advisor is not consulted
	assert.Equal(t, 0.8, Probability(ctx, fixedEstimator(0.8), adv, nil))
	assert.Equal(t, 0.3, Probability(ctx, fixedEstimator(0.3), adv, nil))
	assert.Equal(t, 1, adv.calls)

	failing := &stubAdvisor{err: errors.New("down")}
	assert.Equal(t, 0.45, Probability(ctx, fixedEstimator(0.45), failing, nil))
	assert.Equal(t, 0.45, Probability(ctx, fixedEstimator(0.45), nil, nil))
}

func TestFeatures(t *testing.T) {
	ind := &model.IndicatorSet{
		Price: 100, VWAP: 99, RSI14: 40, RSI7: 35, MACDHist: 0.2, StochK: 15,
		EMA9: 3, EMA21: 2, EMA50: 4, VolCurrent: 2, VolSMA20: 1,
		RSIDivergence: model.DivergenceBearish,
		Patterns:      []model.Pattern{model.PatternDoji, model.PatternHammer},
	}
	f := Features(FeatureInput{
		Ind: ind, Funding: 0.0002, Imbalance: 0.1, Outperform: 1.5,
		Score: 50, Direction: model.Long, Class: model.Swing,
	})
	require.Len(t, f, FeatureCount)
	assert.Equal(t, 40.0, f[0])
	assert.InDelta(t, 2.0, f[4], 1e-6)
	assert.Equal(t, 1.0, f[5])
	assert.Equal(t, 0.0, f[6])
	assert.InDelta(t, 0.01, f[7], 1e-9)
	assert.InDelta(t, 0.2, f[9], 1e-12)
	assert.Equal(t, 1.0, f[12])
	assert.Equal(t, 2.0, f[13])
	assert.Equal(t, 1.0, f[14])
	assert.Equal(t, 2.0, f[15])
}

func TestComputeStats(t *testing.T) {
	outs := []model.OutcomeRecord{
		{Tier: model.TierA, Outcome: 1},
		{Tier: model.TierA, Outcome: 1},
		{Tier: model.TierA, Outcome: 0},
		{Tier: model.TierC, Outcome: 0},
	}
	s := ComputeStats(outs, time.Time{})
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 50.0, s.WinRate)
	assert.Equal(t, 66.7, s.ByTier[model.TierA].WinRate)
	assert.Equal(t, 0.0, s.ByTier[model.TierC].WinRate)
	assert.Nil(t, s.LastTrained)
}
