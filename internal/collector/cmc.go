package collector

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrNoAPIKey is returned by CMC calls when no key is configured.
var ErrNoAPIKey = errors.New("coinmarketcap api key not configured")

// CMCClient talks to the CoinMarketCap pro API.
type CMCClient struct {
	BaseURL string
	APIKey  string
	api     *apiClient
}

// NewCMCClient creates a CoinMarketCap client.
func NewCMCClient(baseURL, apiKey string, opts ClientOptions) *CMCClient {
	c := &CMCClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		api:     newAPIClient("cmc", opts),
	}
	c.api.headers.Set("X-CMC_PRO_API_KEY", apiKey)
	return c
}

func (c *CMCClient) Name() string { return "cmc" }

// Listings returns the top limit assets (coins and tokens) by market cap.
func (c *CMCClient) Listings(ctx context.Context, limit int) ([]Listing, error) {
	return c.listings(ctx, limit, "all")
}

// TopSymbols returns the tickers of the top limit coins by market cap.
func (c *CMCClient) TopSymbols(ctx context.Context, limit int) ([]string, error) {
	ls, err := c.listings(ctx, limit, "coins")
	if err != nil {
		return nil, err
	}
	syms := make([]string, len(ls))
	for i, l := range ls {
		syms[i] = l.Symbol
	}
	return syms, nil
}

func (c *CMCClient) listings(ctx context.Context, limit int, kind string) ([]Listing, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	var out struct {
		Data []struct {
			Symbol string `json:"symbol"`
			Quote  struct {
				USD struct {
					MarketCap float64 `json:"market_cap"`
				} `json:"USD"`
			} `json:"quote"`
		} `json:"data"`
	}
	q := url.Values{
		"limit":               {strconv.Itoa(limit)},
		"sort":                {"market_cap"},
		"convert":             {"USD"},
		"cryptocurrency_type": {kind},
	}
	if err := c.api.getJSON(ctx, "listings", c.BaseURL+"/v1/cryptocurrency/listings/latest", q, &out); err != nil {
		return nil, err
	}
	listings := make([]Listing, 0, len(out.Data))
	for _, d := range out.Data {
		listings = append(listings, Listing{Symbol: d.Symbol, MarketCap: d.Quote.USD.MarketCap})
	}
	return listings, nil
}

// GlobalMetrics holds the dominance fields of the global metrics endpoint. Zero means absent.
type GlobalMetrics struct {
	BTCDominance        float64
	StablecoinDominance float64
	StablecoinField     string
}

// stablecoinFields are tried in order; plans expose different names.
var stablecoinFields = []string{
	"stablecoin_market_cap_dominance",
	"stablecoin_volume_dominance",
	"usdt_dominance",
	"usdt_market_cap_dominance",
	"stable_coin_dominance",
}

// GlobalMetrics returns BTC and stablecoin dominance from the global quotes endpoint.
func (c *CMCClient) GlobalMetrics(ctx context.Context) (GlobalMetrics, error) {
	if c.APIKey == "" {
		return GlobalMetrics{}, ErrNoAPIKey
	}
	var out struct {
		Data map[string]any `json:"data"`
	}
	if err := c.api.getJSON(ctx, "global-metrics", c.BaseURL+"/v1/global-metrics/quotes/latest", nil, &out); err != nil {
		return GlobalMetrics{}, err
	}
	gm := GlobalMetrics{BTCDominance: anyFloat(out.Data["btc_dominance"])}
	for _, f := range stablecoinFields {
		if v := anyFloat(out.Data[f]); v > 0 {
			gm.StablecoinDominance = v
			gm.StablecoinField = f
			break
		}
	}
	return gm, nil
}

func anyFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
