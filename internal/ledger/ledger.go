package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/predictor"
)

// ErrAlreadyTracked is returned when the symbol already has an open trade.
var ErrAlreadyTracked = errors.New("symbol already has an active trade")

const pollWorkers = 8

// PriceSource returns the latest traded price of a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// EventPublisher receives lifecycle events.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, evt model.LifecycleEvent) error
}

// History stores lifecycle events and resolved outcomes.
type History interface {
	RecordLifecycle(ctx context.Context, evt model.LifecycleEvent) error
	RecordOutcome(ctx context.Context, out model.OutcomeRecord) error
}

// Options wires optional collaborators.
type Options struct {
	Estimator predictor.Estimator
	History   History
	Publisher EventPublisher
	// OnOutcome is called with "win" or "loss" when a trade resolves.
	OnOutcome func(outcome string)
}

// Ledger tracks emitted signals until their stop or final target is reached.
// It holds at most one open trade per symbol.
type Ledger struct {
	prices PriceSource
	opts   Options
	now    func() time.Time

	mu     sync.RWMutex
	trades map[string]*model.ActiveTrade
}

func New(prices PriceSource, opts Options) *Ledger {
	return &Ledger{prices: prices, opts: opts, now: time.Now, trades: make(map[string]*model.ActiveTrade)}
}

// Add starts tracking sig.
func (l *Ledger) Add(sig *model.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.trades[sig.Symbol]; ok {
		return fmt.Errorf("%s: %w", sig.Symbol, ErrAlreadyTracked)
	}
	now := l.now()
	l.trades[sig.Symbol] = &model.ActiveTrade{
		Signal:    sig,
		Status:    model.StatusOpen,
		OpenedAt:  now,
		LastPrice: sig.Entry,
		UpdatedAt: now,
	}
	log.Info().Str("symbol", sig.Symbol).Str("tier", string(sig.Tier)).Msg("trade tracked")
	return nil
}

// Has reports whether symbol has an open trade.
func (l *Ledger) Has(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.trades[symbol]
	return ok
}

// Active returns copies of every open trade, oldest first.
func (l *Ledger) Active() []model.ActiveTrade {
	l.mu.RLock()
	out := make([]model.ActiveTrade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, *t)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Len is the number of open trades.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Step advances a trade by one price update. The stop is checked first and at most one
// target is taken per update. A nil event means nothing changed.
func Step(t model.ActiveTrade, price float64, now time.Time) (model.ActiveTrade, *model.LifecycleEvent) {
	t.LastPrice, t.UpdatedAt = price, now
	if t.Status != model.StatusOpen || price <= 0 {
		return t, nil
	}
	sig := t.Signal
	long := sig.Direction == model.Long
	event := func(kind model.EventKind, target int) *model.LifecycleEvent {
		return &model.LifecycleEvent{
			SignalID: sig.ID, Symbol: sig.Symbol, Class: sig.Class,
			Direction: sig.Direction, Tier: sig.Tier,
			Kind: kind, Target: target, Price: price,
			TargetsHit: t.TargetsHit, TotalTargets: len(sig.Targets),
			Status: t.Status, At: now,
		}
	}

	if (long && price <= sig.Stop) || (!long && price >= sig.Stop) {
		t.Status = model.StatusClosedLoss
		return t, event(model.EventStopHit, 0)
	}
	if t.TargetsHit >= len(sig.Targets) {
		return t, nil
	}
	next := sig.Targets[t.TargetsHit]
	if (long && price >= next) || (!long && price <= next) {
		t.TargetsHit++
		if t.TargetsHit == len(sig.Targets) {
			t.Status = model.StatusClosedWin
		}
		return t, event(model.EventTargetHit, t.TargetsHit)
	}
	return t, nil
}

// Poll fetches the last price of every open trade concurrently and applies Step.
// A failed fetch skips that trade until the next poll.
func (l *Ledger) Poll(ctx context.Context) {
	trades := l.Active()
	if len(trades) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollWorkers)
	for _, t := range trades {
		g.Go(func() error {
			price, err := l.prices.LastPrice(gctx, t.Signal.Symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", t.Signal.Symbol).Msg("price fetch failed, trade skipped this poll")
				return nil
			}
			l.apply(gctx, t.Signal.Symbol, price)
			return nil
		})
	}
	_ = g.Wait()
}

func (l *Ledger) apply(ctx context.Context, symbol string, price float64) {
	l.mu.Lock()
	cur, ok := l.trades[symbol]
	if !ok {
		l.mu.Unlock()
		return
	}
	next, evt := Step(*cur, price, l.now())
	if next.Status == model.StatusOpen {
		*cur = next
	} else {
		delete(l.trades, symbol)
	}
	l.mu.Unlock()

	if evt == nil {
		return
	}
	log.Info().Str("symbol", symbol).Str("kind", string(evt.Kind)).Int("targets_hit", evt.TargetsHit).
		Float64("price", price).Str("status", string(evt.Status)).Msg("trade progressed")

	if h := l.opts.History; h != nil {
		if err := h.RecordLifecycle(ctx, *evt); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("failed to record lifecycle event")
		}
	}
	if p := l.opts.Publisher; p != nil {
		if err := p.PublishLifecycle(ctx, *evt); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("failed to publish lifecycle event")
		}
	}
	if next.Status != model.StatusOpen {
		l.resolve(ctx, next)
	}
}

func (l *Ledger) resolve(ctx context.Context, t model.ActiveTrade) {
	sig := t.Signal
	label, outcome := model.OutcomeLoss, "loss"
	if t.Status == model.StatusClosedWin {
		label, outcome = model.OutcomeWin, "win"
	}
	if e := l.opts.Estimator; e != nil && len(sig.Features) > 0 {
		if err := e.RecordOutcome(ctx, sig.Features, label); err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("estimator rejected outcome")
		}
	}
	if h := l.opts.History; h != nil {
		rec := model.OutcomeRecord{
			SignalID: sig.ID, Symbol: sig.Symbol, Class: sig.Class, Tier: sig.Tier,
			Direction: sig.Direction, Score: sig.Score, Outcome: label,
			Features: sig.Features, ClosedAt: t.UpdatedAt,
		}
		if err := h.RecordOutcome(ctx, rec); err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to record outcome")
		}
	}
	if l.opts.OnOutcome != nil {
		l.opts.OnOutcome(outcome)
	}
}
