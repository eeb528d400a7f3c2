package regime

import (
	"context"
	"errors"
	"strings"

	"SignalSentinel/internal/collector"
)

// USDTOffset approximates the stablecoins other than USDT missing from CoinGecko's share.
const USDTOffset = 0.35

// Reading is one source's pair of dominance percentages. Zero means the source had no value.
type Reading struct {
	BTC  float64
	USDT float64
}

// Source is one provider in a dominance fallback chain.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Reading, error)
}

func validBTC(v float64) bool  { return v > 0 && v <= 100 }
func validUSDT(v float64) bool { return v > 0 && v <= 25 }

type globalMetricsClient interface {
	GlobalMetrics(ctx context.Context) (collector.GlobalMetrics, error)
}

// GlobalMetricsSource reads CMC global metrics.
type GlobalMetricsSource struct {
	Client globalMetricsClient
}

func (s GlobalMetricsSource) Name() string { return "cmc" }

func (s GlobalMetricsSource) Fetch(ctx context.Context) (Reading, error) {
	gm, err := s.Client.GlobalMetrics(ctx)
	if err != nil {
		return Reading{}, err
	}
	return Reading{BTC: gm.BTCDominance, USDT: gm.StablecoinDominance}, nil
}

type sharesClient interface {
	MarketCapShares(ctx context.Context) (map[string]float64, error)
}

// CoinGeckoSource reads CoinGecko /global and adds USDTOffset to the Tether share.
type CoinGeckoSource struct {
	Client sharesClient
}

func (s CoinGeckoSource) Name() string { return "coingecko" }

func (s CoinGeckoSource) Fetch(ctx context.Context) (Reading, error) {
	shares, err := s.Client.MarketCapShares(ctx)
	if err != nil {
		return Reading{}, err
	}
	r := Reading{BTC: shares["btc"]}
	if usdt := shares["usdt"]; usdt > 0 {
		r.USDT = usdt + USDTOffset
	}
	return r, nil
}

type listingsClient interface {
	Listings(ctx context.Context, limit int) ([]collector.Listing, error)
}

// ListingsSource computes shares from the market caps of the largest assets.
type ListingsSource struct {
	Client listingsClient
	Limit  int
}

func (s ListingsSource) Name() string { return "cmc_listings" }

func (s ListingsSource) Fetch(ctx context.Context) (Reading, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = 20
	}
	ls, err := s.Client.Listings(ctx, limit)
	if err != nil {
		return Reading{}, err
	}
	var total, btc, usdt float64
	for _, l := range ls {
		total += l.MarketCap
		switch strings.ToUpper(l.Symbol) {
		case "BTC":
			btc = l.MarketCap
		case "USDT":
			usdt = l.MarketCap
		}
	}
	if total <= 0 {
		return Reading{}, errors.New("listings carry no market cap")
	}
	return Reading{BTC: btc / total * 100, USDT: usdt / total * 100}, nil
}
