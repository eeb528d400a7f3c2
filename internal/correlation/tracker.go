package correlation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"SignalSentinel/internal/model"
)

const (
	// Neutral is returned whenever a coefficient cannot be computed.
	Neutral = 0.5

	DefaultTTL   = 30 * time.Minute
	sampleSize   = 60
	minAlignment = 10
	fetchTimeout = 15 * time.Second
)

// CandleSource is the subset of the market client the tracker needs.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// Record is one cached coefficient.
type Record struct {
	Symbol      string    `json:"symbol"`
	Coefficient float64   `json:"coefficient"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Tracker caches per-symbol Pearson correlation of returns against a reference symbol.
type Tracker struct {
	source    CandleSource
	reference string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]Record
	group singleflight.Group
}

// NewTracker creates a tracker correlating against reference.
func NewTracker(source CandleSource, reference string, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		source:    source,
		reference: reference,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]Record),
	}
}

// Correlation returns the cached coefficient for symbol, refreshing it when stale.
// Lookups of the same symbol while a refresh is in flight share that refresh. The
// refresh outlives a cancelled caller, which gets Neutral back.
func (t *Tracker) Correlation(ctx context.Context, symbol, interval string) float64 {
	key := symbol + "|" + interval
	t.mu.RLock()
	rec, ok := t.cache[key]
	t.mu.RUnlock()
	if ok && t.now().Sub(rec.ComputedAt) < t.ttl {
		return rec.Coefficient
	}

	ch := t.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		coef, err := t.compute(fctx, symbol, interval)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("correlation unavailable, using neutral")
			return Neutral, nil
		}
		t.mu.Lock()
		t.cache[key] = Record{Symbol: symbol, Coefficient: coef, ComputedAt: t.now()}
		t.mu.Unlock()
		return coef, nil
	})
	select {
	case res := <-ch:
		return res.Val.(float64)
	case <-ctx.Done():
		return Neutral
	}
}

// Snapshot returns a copy of every cached record.
func (t *Tracker) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.cache))
	for _, r := range t.cache {
		out = append(out, r)
	}
	return out
}

var errTooShort = fmt.Errorf("fewer than %d aligned points", minAlignment)

func (t *Tracker) compute(ctx context.Context, symbol, interval string) (float64, error) {
	coin, err := t.source.Candles(ctx, symbol, interval, sampleSize)
	if err != nil {
		return 0, fmt.Errorf("fetch %s candles: %w", symbol, err)
	}
	ref, err := t.source.Candles(ctx, t.reference, interval, sampleSize)
	if err != nil {
		return 0, fmt.Errorf("fetch %s candles: %w", t.reference, err)
	}
	n := min(len(coin), len(ref))
	if n < minAlignment {
		return 0, errTooShort
	}
	a := returns(closes(coin[len(coin)-n:]))
	b := returns(closes(ref[len(ref)-n:]))
	return Pearson(a, b), nil
}

func closes(c []model.Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Close
	}
	return out
}

func returns(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = (xs[i] - xs[i-1]) / (xs[i-1] + 1e-9)
	}
	return out
}

// Pearson returns the correlation coefficient of a and b clamped to [-1,1].
// Degenerate inputs (mismatched, empty or zero variance) yield Neutral.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return Neutral
	}
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= float64(len(a))
	mb /= float64(len(b))

	var cov, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return Neutral
	}
	r := cov / math.Sqrt(va*vb)
	if math.IsNaN(r) {
		return Neutral
	}
	return math.Max(-1, math.Min(1, r))
}
