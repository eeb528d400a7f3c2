package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(t *testing.T, st store.StateStore, c *clock) *Gate {
	t.Helper()
	tun, err := config.NewTunablesStore("")
	require.NoError(t, err)
	g, err := newGate(context.Background(), st, tun, c.now)
	require.NoError(t, err)
	return g
}

func TestAllows_ScalpTopTierAlwaysPasses(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		require.True(t, g.Allows(model.Scalp, model.TierA))
		g.RecordSend(ctx, model.Scalp, model.TierA)
	}
	assert.Equal(t, 40, g.State().Classes[model.Scalp].Sent[model.TierA])
	assert.False(t, g.Allows(model.Scalp, model.TierB), "gap not met")
}

func TestAllows_GapPerClass(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	g.RecordSend(context.Background(), model.Day, model.TierA)

	c.advance(30 * time.Minute)
	assert.False(t, g.Allows(model.Day, model.TierA))
	assert.True(t, g.Allows(model.Swing, model.TierA), "other classes keep their own clock")

	c.advance(31 * time.Minute)
	assert.True(t, g.Allows(model.Day, model.TierA))
	assert.False(t, g.Allows(model.Day, model.TierB), "90 minute gap")
}

func TestAllows_MiddleTierWaitsForHourlyReset(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	ctx := context.Background()
	g.RecordSend(ctx, model.Day, model.TierA)

	c.advance(2 * time.Hour)
	assert.False(t, g.Allows(model.Day, model.TierB))
	g.ResetHourly(ctx)
	assert.True(t, g.Allows(model.Day, model.TierB))
}

func TestAllows_LowestTierBlockedByMiddleTier(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 1, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	ctx := context.Background()
	require.True(t, g.Allows(model.Swing, model.TierC))
	g.RecordSend(ctx, model.Swing, model.TierB)

	c.advance(3 * time.Hour)
	assert.False(t, g.Allows(model.Swing, model.TierC))
	assert.True(t, g.Allows(model.Swing, model.TierB))
}

func TestAllows_DailyBounds(t *testing.T) {
	tun := config.DefaultTunables()
	for _, class := range []model.TradeClass{model.Day, model.Swing} {
		t.Run(string(class), func(t *testing.T) {
			c := &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
			g := newTestGate(t, nil, c)
			ctx := context.Background()
			rule := tun.Quota[class]
			gap := time.Duration(rule.GapMinutes[model.TierB]) * time.Minute
			for c.t.Day() == 1 {
				for _, tier := range []model.Tier{model.TierB, model.TierC} {
					if g.Allows(class, tier) {
						g.RecordSend(ctx, class, tier)
						break
					}
				}
				g.ResetHourly(ctx)
				c.advance(gap)
			}
			sent := g.State().Classes[class].Sent
			assert.LessOrEqual(t, sent[model.TierB], rule.DailyTarget)
			assert.LessOrEqual(t, sent[model.TierB]+sent[model.TierC], rule.DailyTarget)
			assert.Positive(t, sent[model.TierB])
		})
	}
}

func TestAllows_DoesNotMutate(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	ctx := context.Background()
	g.RecordSend(ctx, model.Day, model.TierB)
	before := g.State()

	c.advance(2 * time.Hour) // next UTC day
	for _, class := range model.Classes {
		for _, tier := range model.Tiers {
			g.Allows(class, tier)
		}
	}
	assert.Equal(t, before, g.State())
	// the evaluated view already sees the new day
	assert.True(t, g.Allows(model.Day, model.TierC))
}

func TestRecordSend_IncrementsExactly(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	ctx := context.Background()
	g.RecordSend(ctx, model.Swing, model.TierC)
	g.RecordSend(ctx, model.Swing, model.TierC)
	q := g.State().Classes[model.Swing]
	assert.Equal(t, 2, q.Sent[model.TierC])
	assert.Equal(t, c.t, q.LastSend)
	assert.False(t, q.HourHasTop)
	assert.False(t, q.DayHasMid)
}

func TestResetIfNewDay(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)}
	g := newTestGate(t, nil, c)
	ctx := context.Background()
	g.RecordSend(ctx, model.Day, model.TierB)
	last := c.t

	assert.False(t, g.ResetIfNewDay(ctx))
	c.advance(3 * time.Hour)
	assert.True(t, g.ResetIfNewDay(ctx))

	q := g.State().Classes[model.Day]
	assert.Zero(t, q.Total())
	assert.False(t, q.DayHasMid)
	assert.Equal(t, last, q.LastSend)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), q.DayStart)
}

func TestGate_RestoresFromStore(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	g := newTestGate(t, st, c)
	g.RecordSend(ctx, model.Day, model.TierA)
	g.RecordSend(ctx, model.Scalp, model.TierB)

	restored := newTestGate(t, st, c)
	q := restored.State().Classes[model.Day]
	assert.Equal(t, 1, q.Sent[model.TierA])
	assert.True(t, q.HourHasTop)
	assert.True(t, restored.State().Classes[model.Scalp].DayHasMid)
	assert.False(t, restored.Allows(model.Day, model.TierA), "gap survives restart")
}
