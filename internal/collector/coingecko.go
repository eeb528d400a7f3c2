package collector

import (
	"context"
	"strings"
)

// CoinGeckoClient reads the public CoinGecko API. No key is required.
type CoinGeckoClient struct {
	BaseURL string
	api     *apiClient
}

func NewCoinGeckoClient(baseURL string, opts ClientOptions) *CoinGeckoClient {
	c := &CoinGeckoClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		api:     newAPIClient("coingecko", opts),
	}
	c.api.headers.Set("User-Agent", "Mozilla/5.0")
	return c
}

func (c *CoinGeckoClient) Name() string { return "coingecko" }

// MarketCapShares returns the market_cap_percentage map of /global keyed by lower-case ticker.
func (c *CoinGeckoClient) MarketCapShares(ctx context.Context) (map[string]float64, error) {
	var out struct {
		Data struct {
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		} `json:"data"`
	}
	if err := c.api.getJSON(ctx, "global", c.BaseURL+"/global", nil, &out); err != nil {
		return nil, err
	}
	return out.Data.MarketCapPercentage, nil
}
