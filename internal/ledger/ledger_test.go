package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/model"
)

func longSignal(symbol string) *model.Signal {
	return &model.Signal{
		ID: "id-" + symbol, Symbol: symbol, Class: model.Day, Direction: model.Long, Tier: model.TierB,
		Entry: 100, Stop: 95, Targets: []float64{110, 117.5, 125},
		Features: make([]float64, 16),
	}
}

func TestStep_OneTargetPerUpdate(t *testing.T) {
	now := time.Now()
	tr := model.ActiveTrade{Signal: longSignal("SOLUSDT"), Status: model.StatusOpen}

	// a jump through every target still advances by one
	tr, evt := Step(tr, 130, now)
	require.NotNil(t, evt)
	assert.Equal(t, model.EventTargetHit, evt.Kind)
	assert.Equal(t, 1, evt.Target)
	assert.Equal(t, 1, tr.TargetsHit)
	assert.Equal(t, model.StatusOpen, tr.Status)

	tr, _ = Step(tr, 130, now)
	tr, evt = Step(tr, 130, now)
	assert.Equal(t, 3, tr.TargetsHit)
	assert.Equal(t, model.StatusClosedWin, tr.Status)
	assert.Equal(t, model.StatusClosedWin, evt.Status)

	tr, evt = Step(tr, 90, now)
	assert.Nil(t, evt, "closed trades do not move")
	assert.Equal(t, 3, tr.TargetsHit)
}

func TestStep_StopCheckedFirst(t *testing.T) {
	tr := model.ActiveTrade{Signal: longSignal("SOLUSDT"), Status: model.StatusOpen, TargetsHit: 1}
	tr, evt := Step(tr, 95, time.Now())
	require.NotNil(t, evt)
	assert.Equal(t, model.EventStopHit, evt.Kind)
	assert.Equal(t, model.StatusClosedLoss, tr.Status)
	assert.Equal(t, 1, tr.TargetsHit)
}

func TestStep_Short(t *testing.T) {
	sig := &model.Signal{Symbol: "ETHUSDT", Direction: model.Short, Entry: 100, Stop: 104, Targets: []float64{92, 88, 84}}
	tr := model.ActiveTrade{Signal: sig, Status: model.StatusOpen}

	tr, evt := Step(tr, 93, time.Now())
	assert.Nil(t, evt)
	tr, evt = Step(tr, 91.5, time.Now())
	require.NotNil(t, evt)
	assert.Equal(t, 1, tr.TargetsHit)
	tr, evt = Step(tr, 104.1, time.Now())
	require.NotNil(t, evt)
	assert.Equal(t, model.StatusClosedLoss, tr.Status)
}

func TestStep_TargetsHitMonotonic(t *testing.T) {
	tr := model.ActiveTrade{Signal: longSignal("SOLUSDT"), Status: model.StatusOpen}
	prices := []float64{101, 111, 105, 99, 118, 112, 126, 130}
	prev := 0
	for _, p := range prices {
		tr, _ = Step(tr, p, time.Now())
		assert.GreaterOrEqual(t, tr.TargetsHit, prev)
		assert.LessOrEqual(t, tr.TargetsHit, prev+1)
		prev = tr.TargetsHit
	}
	assert.Equal(t, model.StatusClosedWin, tr.Status)
}

type prices struct {
	mu  sync.Mutex
	m   map[string]float64
	bad map[string]bool
}

func (p *prices) LastPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bad[symbol] {
		return 0, errors.New("ticker unavailable")
	}
	return p.m[symbol], nil
}

type recorded struct {
	mu       sync.Mutex
	events   []model.LifecycleEvent
	outcomes []model.OutcomeRecord
	labels   []int
	publish  []model.LifecycleEvent
}

func (r *recorded) RecordLifecycle(_ context.Context, e model.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorded) RecordOutcome(_ context.Context, o model.OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *recorded) PublishLifecycle(_ context.Context, e model.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish = append(r.publish, e)
	return nil
}

type estimator struct{ r *recorded }

func (e estimator) Estimate(context.Context, []float64) float64 { return 0.5 }
func (e estimator) Samples() int                                { return 0 }

func (e estimator) RecordOutcome(_ context.Context, _ []float64, label int) error {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.r.labels = append(e.r.labels, label)
	return nil
}

func TestLedger_AddRejectsDuplicates(t *testing.T) {
	l := New(&prices{}, Options{})
	require.NoError(t, l.Add(longSignal("SOLUSDT")))
	err := l.Add(longSignal("SOLUSDT"))
	assert.ErrorIs(t, err, ErrAlreadyTracked)
	assert.True(t, l.Has("SOLUSDT"))
	assert.False(t, l.Has("ETHUSDT"))
	assert.Equal(t, 1, l.Len())
}

func TestLedger_Poll(t *testing.T) {
	src := &prices{
		m:   map[string]float64{"SOLUSDT": 111, "XRPUSDT": 94, "ADAUSDT": 100},
		bad: map[string]bool{"ADAUSDT": true},
	}
	rec := &recorded{}
	var outcomes []string
	l := New(src, Options{
		Estimator: estimator{rec},
		History:   rec,
		Publisher: rec,
		OnOutcome: func(o string) { outcomes = append(outcomes, o) },
	})
	for _, s := range []string{"SOLUSDT", "XRPUSDT", "ADAUSDT"} {
		require.NoError(t, l.Add(longSignal(s)))
	}

	l.Poll(context.Background())

	assert.True(t, l.Has("SOLUSDT"))
	assert.False(t, l.Has("XRPUSDT"), "stopped out")
	assert.True(t, l.Has("ADAUSDT"), "fetch failure keeps the trade")

	var sol model.ActiveTrade
	for _, tr := range l.Active() {
		if tr.Signal.Symbol == "SOLUSDT" {
			sol = tr
		}
	}
	assert.Equal(t, 1, sol.TargetsHit)
	assert.Len(t, rec.events, 2)
	assert.Len(t, rec.publish, 2)
	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, "XRPUSDT", rec.outcomes[0].Symbol)
	assert.Equal(t, model.OutcomeLoss, rec.outcomes[0].Outcome)
	assert.Equal(t, []int{model.OutcomeLoss}, rec.labels)
	assert.Equal(t, []string{"loss"}, outcomes)

	// run SOL through the remaining targets
	src.mu.Lock()
	src.m["SOLUSDT"] = 126
	src.mu.Unlock()
	l.Poll(context.Background())
	l.Poll(context.Background())
	assert.False(t, l.Has("SOLUSDT"))
	assert.Equal(t, []string{"loss", "win"}, outcomes)
	assert.Equal(t, []int{model.OutcomeLoss, model.OutcomeWin}, rec.labels)
}
