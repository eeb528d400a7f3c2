package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"SignalSentinel/internal/model"
)

// Snapshot fetch parameters.
const (
	DepthLevels = 20
	TakerPeriod = "5m"
	TakerLimit  = 10
)

// Collector fetches the full per-instrument snapshot used by one scan.
type Collector struct {
	Market Market
	now    func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(market Market) *Collector {
	return &Collector{Market: market, now: time.Now}
}

// Snapshot fetches candles, open interest, funding, order-book imbalance, taker ratio
// and the 24h ticker concurrently. Candles and ticker are required; the rest fall back
// to neutral defaults (funding 0, imbalance 0, taker ratio 1).
func (c *Collector) Snapshot(ctx context.Context, symbol, interval string, limit int) (*model.Snapshot, error) {
	snap := &model.Snapshot{Symbol: symbol, TakerRatio: 1.0}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		candles, err := c.Market.Candles(gctx, symbol, interval, limit)
		if err != nil {
			return fmt.Errorf("fetch candles: %w", err)
		}
		snap.Candles = candles
		return nil
	})
	g.Go(func() error {
		t, err := c.Market.Ticker24h(gctx, symbol)
		if err != nil {
			return fmt.Errorf("fetch ticker: %w", err)
		}
		snap.Ticker = t
		return nil
	})
	g.Go(func() error {
		oi, ok, err := c.Market.OpenInterest(gctx, symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("open interest unavailable")
			return nil
		}
		snap.OpenInterest, snap.HasOI = oi, ok
		return nil
	})
	g.Go(func() error {
		if f, err := c.Market.FundingRate(gctx, symbol); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("funding rate unavailable, using 0")
		} else {
			snap.FundingRate = f
		}
		return nil
	})
	g.Go(func() error {
		if imb, err := c.Market.OrderBookImbalance(gctx, symbol, DepthLevels); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("order book unavailable, using 0")
		} else {
			snap.Imbalance = imb
		}
		return nil
	})
	g.Go(func() error {
		if r, err := c.Market.TakerBuySellRatio(gctx, symbol, TakerPeriod, TakerLimit); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("taker ratio unavailable, using 1.0")
		} else if r > 0 {
			snap.TakerRatio = r
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}
	snap.FetchedAt = c.now()
	return snap, nil
}

// ChangePct returns the percent move of symbol over the last bars candles of interval.
func (c *Collector) ChangePct(ctx context.Context, symbol, interval string, bars int) (float64, error) {
	candles, err := c.Market.Candles(ctx, symbol, interval, bars+1)
	if err != nil {
		return 0, fmt.Errorf("fetch %s candles: %w", symbol, err)
	}
	return model.ChangePct(candles, bars), nil
}

// LastPrice returns the latest traded price of symbol.
func (c *Collector) LastPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := c.Market.Ticker24h(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.LastPrice, nil
}
