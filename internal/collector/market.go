package collector

import (
	"context"

	"SignalSentinel/internal/model"
)

// Market is the market data capability consumed by the scan pipeline.
type Market interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
	// OpenInterest returns open interest in contracts; ok is false when the venue has none.
	OpenInterest(ctx context.Context, symbol string) (oi float64, ok bool, err error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
	// OrderBookImbalance returns (bids-asks)/(bids+asks) over depth levels, in [-1,1].
	OrderBookImbalance(ctx context.Context, symbol string, depth int) (float64, error)
	TakerBuySellRatio(ctx context.Context, symbol, period string, limit int) (float64, error)
	Ticker24h(ctx context.Context, symbol string) (model.Ticker, error)
	Name() string
}

// SymbolLister lists tradable USDT perpetual symbols.
type SymbolLister interface {
	PerpetualSymbols(ctx context.Context) ([]string, error)
}

// Listing is one ranked asset from a market-cap listing.
type Listing struct {
	Symbol    string
	MarketCap float64
}

// RankSource returns the tickers of the largest coins by market cap.
type RankSource interface {
	TopSymbols(ctx context.Context, limit int) ([]string, error)
}
