package regime

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

const (
	// MacroTTL is how long a slow reading serves Macro without a refresh.
	MacroTTL = 10 * time.Minute

	shiftBTC  = 0.5
	shiftUSDT = 0.3
	stateKey  = "regime"
)

// ErrNoFastReading is returned when no fast source produced a usable pair.
var ErrNoFastReading = errors.New("no fast dominance reading")

// ShiftPublisher receives regime shift alerts.
type ShiftPublisher interface {
	PublishRegimeShift(ctx context.Context, shift model.RegimeShift) error
}

// ReadingHook observes every resolved slow reading (used for metrics and history).
type ReadingHook func(r model.DominanceReading)

// Options wires optional collaborators.
type Options struct {
	Store     store.StateStore
	Publisher ShiftPublisher
	OnReading ReadingHook
}

type persisted struct {
	Samples  []model.DominanceSample `json:"samples"`
	Last     *model.DominanceReading `json:"last"`
	PrevSlow *model.DominanceReading `json:"prev_slow"`
}

// Tracker owns the fast sample window and the slow macro regime.
type Tracker struct {
	fast []Source
	slow []Source
	opts Options
	now  func() time.Time

	mu       sync.RWMutex
	samples  []model.DominanceSample
	signal   model.RegimeSignal
	last     *model.DominanceReading // newest reading from either path
	lastAt   time.Time
	prevSlow *model.DominanceReading
}

// NewTracker creates a tracker. fast is the per-minute chain, slow the full fallback chain.
func NewTracker(fast, slow []Source, opts Options) *Tracker {
	t := &Tracker{fast: fast, slow: slow, opts: opts, now: time.Now}
	t.signal = ComputeSignal(nil, t.now())
	return t
}

// Restore reloads samples and the last readings from the state store.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.opts.Store == nil {
		return nil
	}
	var p persisted
	found, err := t.opts.Store.Load(ctx, stateKey, &p)
	if err != nil || !found {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(p.Samples) > WindowSize {
		p.Samples = p.Samples[len(p.Samples)-WindowSize:]
	}
	t.samples = p.Samples
	t.last = p.Last
	t.prevSlow = p.PrevSlow
	// restored readings never count as fresh for Macro
	t.lastAt = time.Time{}
	t.signal = ComputeSignal(t.samples, t.now())
	log.Info().Int("samples", len(t.samples)).Msg("regime state restored")
	return nil
}

func (t *Tracker) persistLocked(ctx context.Context) {
	if t.opts.Store == nil {
		return
	}
	p := persisted{
		Samples:  append([]model.DominanceSample(nil), t.samples...),
		Last:     t.last,
		PrevSlow: t.prevSlow,
	}
	if err := t.opts.Store.Save(ctx, stateKey, p); err != nil {
		log.Error().Err(err).Msg("failed to save regime state")
	}
}

// SampleFast appends one sample from the fast chain and recomputes the fast signal.
func (t *Tracker) SampleFast(ctx context.Context) (model.RegimeSignal, error) {
	now := t.now()
	r, ok := resolveFast(ctx, t.fast, now)
	if !ok {
		return t.Signal(), ErrNoFastReading
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(model.DominanceSample{Time: now, BTC: r.BTC, USDT: r.USDT})
	t.signal = ComputeSignal(t.samples, now)
	t.last, t.lastAt = &r, now
	t.persistLocked(ctx)
	log.Debug().Float64("btc", r.BTC).Float64("usdt", r.USDT).Str("bias", string(t.signal.Bias)).Msg("fast regime sample")
	return t.signal, nil
}

// appendLocked adds s unless a sample at or after its timestamp already exists.
func (t *Tracker) appendLocked(s model.DominanceSample) bool {
	if n := len(t.samples); n > 0 && !t.samples[n-1].Time.Before(s.Time) {
		return false
	}
	t.samples = append(t.samples, s)
	if len(t.samples) > WindowSize {
		t.samples = t.samples[len(t.samples)-WindowSize:]
	}
	return true
}

// Prefill collects n samples spaced by spacing so the fast bias is usable at startup.
func (t *Tracker) Prefill(ctx context.Context, n int, spacing time.Duration) int {
	collected := 0
	for i := 0; i < n; i++ {
		if _, err := t.SampleFast(ctx); err == nil {
			collected++
		}
		if i == n-1 {
			break
		}
		select {
		case <-ctx.Done():
			return collected
		case <-time.After(spacing):
		}
	}
	sig := t.Signal()
	log.Info().Int("samples", collected).Str("bias", string(sig.Bias)).Msg("fast regime prefilled")
	return collected
}

// RefreshSlow resolves a fresh slow reading, bypassing the cache, and publishes a
// RegimeShift when it moved sharply since the previous slow refresh.
func (t *Tracker) RefreshSlow(ctx context.Context) model.MacroRegime {
	t.mu.RLock()
	last := t.last
	t.mu.RUnlock()

	now := t.now()
	r := resolveSlow(ctx, t.slow, last, now)
	if t.opts.OnReading != nil {
		t.opts.OnReading(r)
	}
	macro := macroOf(r)

	t.mu.Lock()
	prev := t.prevSlow
	t.prevSlow = &r
	t.last, t.lastAt = &r, now
	t.persistLocked(ctx)
	t.mu.Unlock()

	log.Info().Float64("btc", r.BTC).Float64("usdt", r.USDT).Str("regime", string(macro.Category)).Bool("estimated", r.Estimated).Msg("slow regime refreshed")

	if prev != nil {
		dBTC, dUSDT := r.BTC-prev.BTC, r.USDT-prev.USDT
		if math.Abs(dBTC) > shiftBTC || math.Abs(dUSDT) > shiftUSDT {
			shift := model.RegimeShift{
				BTC: r.BTC, USDT: r.USDT,
				BTCDelta: round3(dBTC), USDTDelta: round3(dUSDT),
				Category: macro.Category, Bias: macro.Bias, At: now,
			}
			log.Warn().Float64("btc_delta", shift.BTCDelta).Float64("usdt_delta", shift.USDTDelta).Msg("regime shift")
			if t.opts.Publisher != nil {
				if err := t.opts.Publisher.PublishRegimeShift(ctx, shift); err != nil {
					log.Error().Err(err).Msg("failed to publish regime shift")
				}
			}
		}
	}
	return macro
}

// Macro returns the macro regime from a reading no older than MacroTTL.
func (t *Tracker) Macro(ctx context.Context) model.MacroRegime {
	t.mu.RLock()
	last, at := t.last, t.lastAt
	t.mu.RUnlock()
	if last != nil && !at.IsZero() && t.now().Sub(at) < MacroTTL {
		return macroOf(*last)
	}

	r := resolveSlow(ctx, t.slow, last, t.now())
	if t.opts.OnReading != nil {
		t.opts.OnReading(r)
	}
	t.mu.Lock()
	t.last, t.lastAt = &r, r.FetchedAt
	t.persistLocked(ctx)
	t.mu.Unlock()
	return macroOf(r)
}

func macroOf(r model.DominanceReading) model.MacroRegime {
	m := BuildMacro(r.BTC, r.USDT)
	m.BTC, m.USDT = round2(r.BTC), round2(r.USDT)
	m.Estimated = r.Estimated
	m.Source = r.USDTSource
	if r.BTCSource != r.USDTSource {
		m.Source = r.BTCSource + "+" + r.USDTSource
	}
	m.UpdatedAt = r.FetchedAt
	return m
}

// Signal returns the latest fast signal.
func (t *Tracker) Signal() model.RegimeSignal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.signal
}

// Samples returns a copy of the sample window.
func (t *Tracker) Samples() []model.DominanceSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.DominanceSample(nil), t.samples...)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
