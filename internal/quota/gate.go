package quota

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

const stateKey = "quota"

// TunablesSource yields the live tunables. Rules are read on every check.
type TunablesSource interface {
	Get() *config.Tunables
}

// Gate paces emission per trade class and tier.
type Gate struct {
	mu       sync.Mutex
	state    model.QuotaState
	store    store.StateStore
	tunables TunablesSource
	now      func() time.Time
}

// NewGate creates a gate, restoring persisted state when st holds any.
func NewGate(ctx context.Context, st store.StateStore, tunables TunablesSource) (*Gate, error) {
	return newGate(ctx, st, tunables, time.Now)
}

func newGate(ctx context.Context, st store.StateStore, tunables TunablesSource, now func() time.Time) (*Gate, error) {
	g := &Gate{store: st, tunables: tunables, now: now}
	g.state = model.QuotaState{Classes: make(map[model.TradeClass]*model.ClassQuota)}
	if st != nil {
		var saved model.QuotaState
		found, err := st.Load(ctx, stateKey, &saved)
		if err != nil {
			return nil, err
		}
		if found && saved.Classes != nil {
			g.state = saved
			log.Info().Int("classes", len(saved.Classes)).Msg("quota state restored")
		}
	}
	day := dayStart(now())
	for _, class := range model.Classes {
		if g.state.Classes[class] == nil {
			g.state.Classes[class] = g.fresh(class, day)
		}
		if g.state.Classes[class].Sent == nil {
			g.state.Classes[class].Sent = make(map[model.Tier]int)
		}
	}
	return g, nil
}

func (g *Gate) fresh(class model.TradeClass, day time.Time) *model.ClassQuota {
	return &model.ClassQuota{
		DayStart:    day,
		Sent:        make(map[model.Tier]int),
		DailyTarget: g.tunables.Get().Quota[class].DailyTarget,
	}
}

func dayStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Allows reports whether a candidate of this class and tier may be emitted now.
// It never mutates state. A pending UTC day rollover is applied to the evaluated view only.
func (g *Gate) Allows(class model.TradeClass, tier model.Tier) bool {
	if class == model.Scalp && tier == model.TierA {
		return true
	}

	rule := g.tunables.Get().Quota[class]
	now := g.now()

	g.mu.Lock()
	q := g.state.Classes[class]
	if q == nil {
		g.mu.Unlock()
		return false
	}
	view := q.Clone()
	g.mu.Unlock()

	if view.DayStart.Before(dayStart(now)) {
		view.Sent = map[model.Tier]int{}
		view.HourHasTop = false
		view.DayHasMid = false
	}

	gap := time.Duration(rule.GapMinutes[tier]) * time.Minute
	if elapsed := now.Sub(view.LastSend); !view.LastSend.IsZero() && elapsed < gap {
		log.Debug().Str("class", string(class)).Str("tier", string(tier)).
			Dur("elapsed", elapsed).Dur("gap", gap).Msg("quota gap not met")
		return false
	}
	if tier == model.TierA {
		return true
	}

	total := view.Total()
	if rule.DailyCap > 0 && total >= rule.DailyCap {
		return false
	}
	switch tier {
	case model.TierB:
		return !view.HourHasTop && rule.DailyTarget-view.Sent[model.TierA]-view.Sent[model.TierB] > 0
	case model.TierC:
		return !view.DayHasMid && view.Sent[model.TierB] == 0 && total < rule.DailyTarget
	}
	return false
}

// RecordSend books one emitted signal.
func (g *Gate) RecordSend(ctx context.Context, class model.TradeClass, tier model.Tier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	q := g.state.Classes[class]
	if q == nil {
		return
	}
	q.Sent[tier]++
	q.LastSend = g.now()
	switch tier {
	case model.TierA:
		q.HourHasTop = true
	case model.TierB:
		q.DayHasMid = true
	}
	g.saveLocked(ctx)
}

// ResetHourly clears the top-tier-this-hour flag of every class.
func (g *Gate) ResetHourly(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, q := range g.state.Classes {
		q.HourHasTop = false
	}
	g.saveLocked(ctx)
	log.Debug().Msg("quota hourly flags reset")
}

// ResetIfNewDay zeroes the counters of every class whose day has ended.
func (g *Gate) ResetIfNewDay(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.rolloverLocked() {
		return false
	}
	g.saveLocked(ctx)
	return true
}

// ResetDaily is the midnight job. It is a no-op when the day has not changed.
func (g *Gate) ResetDaily(ctx context.Context) {
	if g.ResetIfNewDay(ctx) {
		log.Info().Msg("quota reset for new UTC day")
	}
}

func (g *Gate) rolloverLocked() bool {
	today := dayStart(g.now())
	changed := false
	for class, q := range g.state.Classes {
		if !q.DayStart.Before(today) {
			continue
		}
		next := g.fresh(class, today)
		next.LastSend = q.LastSend
		g.state.Classes[class] = next
		changed = true
		log.Info().Str("class", string(class)).Msg("quota reset (new UTC day)")
	}
	return changed
}

func (g *Gate) saveLocked(ctx context.Context) {
	g.state.UpdatedAt = g.now()
	if g.store == nil {
		return
	}
	if err := g.store.Save(ctx, stateKey, g.state); err != nil {
		log.Error().Err(err).Msg("failed to save quota state")
	}
}

// State returns a copy of the current bookkeeping.
func (g *Gate) State() model.QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone()
}
