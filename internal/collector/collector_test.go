package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/model"
)

func newBinanceTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		// deliberately out of order
		fmt.Fprint(w, `[
			[1700000300000,"101","103","100","102","20",1700000599999,"0",1,"0","0","0"],
			[1700000000000,"100","102","99","101","10",1700000299999,"0",1,"0","0","0"]
		]`)
	})
	mux.HandleFunc("/fapi/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bids":[["100","3"],["99.9","1"]],"asks":[["100.1","1"]]}`)
	})
	mux.HandleFunc("/fapi/v1/openInterest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"ETHUSDT","openInterest":"1500.5","time":1}`)
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"ETHUSDT","lastFundingRate":"0.00012"}`)
	})
	mux.HandleFunc("/futures/data/takerlongshortRatio", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"buySellRatio":"1.30","timestamp":2},{"buySellRatio":"0.90","timestamp":1}]`)
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BADUSDT" {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("symbol") == "ODDUSDT" {
			fmt.Fprint(w, `{"symbol":"ODDUSDT","lastPrice":"0.51","quoteVolume":"n/a"}`)
			return
		}
		fmt.Fprint(w, `{"symbol":"ETHUSDT","lastPrice":"2500.10","quoteVolume":"123456789.5"}`)
	})
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"BTCUSDT","quoteAsset":"USDT","contractType":"PERPETUAL","status":"TRADING"},
			{"symbol":"ETHUSDT","quoteAsset":"USDT","contractType":"PERPETUAL","status":"TRADING"},
			{"symbol":"ETHUSDT_240329","quoteAsset":"USDT","contractType":"CURRENT_QUARTER","status":"TRADING"},
			{"symbol":"OLDUSDT","quoteAsset":"USDT","contractType":"PERPETUAL","status":"SETTLING"},
			{"symbol":"BTCBUSD","quoteAsset":"BUSD","contractType":"PERPETUAL","status":"TRADING"}
		]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceClient(t *testing.T) {
	srv := newBinanceTestServer(t)
	var failed []string
	b := NewBinanceClient(srv.URL+"/", ClientOptions{
		RequestsPerSecond: 1000,
		Burst:             100,
		OnError:           func(e string) { failed = append(failed, e) },
	})
	ctx := context.Background()

	candles, err := b.Candles(ctx, "ETHUSDT", "5m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
	assert.Equal(t, model.Candle{OpenTime: candles[0].OpenTime, Open: 100, High: 102, Low: 99, Close: 101, Volume: 10}, candles[0])

	imb, err := b.OrderBookImbalance(ctx, "ETHUSDT", 20)
	require.NoError(t, err)
	assert.InDelta(t, (4.0-1.0)/5.0, imb, 1e-9)

	oi, ok, err := b.OpenInterest(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 1500.5, oi, 1e-9)

	f, err := b.FundingRate(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.00012, f, 1e-12)

	taker, err := b.TakerBuySellRatio(ctx, "ETHUSDT", "5m", 10)
	require.NoError(t, err)
	assert.InDelta(t, 1.30, taker, 1e-9, "latest by timestamp")

	tk, err := b.Ticker24h(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, model.Ticker{Symbol: "ETHUSDT", LastPrice: 2500.10, QuoteVolume: 123456789.5}, tk)

	syms, err := b.PerpetualSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)

	_, err = b.Ticker24h(ctx, "BADUSDT")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, []string{"binance.ticker24hr"}, failed)
}

func TestBinanceClient_MalformedQuoteVolume(t *testing.T) {
	srv := newBinanceTestServer(t)
	b := NewBinanceClient(srv.URL+"/", ClientOptions{RequestsPerSecond: 1000, Burst: 100})

	_, err := b.Ticker24h(context.Background(), "ODDUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse quote volume")
}

func TestCMCClient_GlobalMetricsFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-CMC_PRO_API_KEY"))
		switch r.URL.Path {
		case "/v1/global-metrics/quotes/latest":
			fmt.Fprint(w, `{"data":{"btc_dominance":57.12,"stablecoin_market_cap_dominance":0,"usdt_dominance":"7.9"}}`)
		case "/v1/cryptocurrency/listings/latest":
			assert.Equal(t, "coins", r.URL.Query().Get("cryptocurrency_type"))
			fmt.Fprint(w, `{"data":[{"symbol":"BTC","quote":{"USD":{"market_cap":1000}}},{"symbol":"ETH","quote":{"USD":{"market_cap":400}}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewCMCClient(srv.URL, "secret", ClientOptions{RequestsPerSecond: 100})
	gm, err := c.GlobalMetrics(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 57.12, gm.BTCDominance, 1e-9)
	assert.InDelta(t, 7.9, gm.StablecoinDominance, 1e-9)
	assert.Equal(t, "usdt_dominance", gm.StablecoinField)

	syms, err := c.TopSymbols(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, syms)

	_, err = NewCMCClient(srv.URL, "", ClientOptions{}).GlobalMetrics(context.Background())
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestCoinGeckoClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/global", r.URL.Path)
		fmt.Fprint(w, `{"data":{"market_cap_percentage":{"btc":58.1,"usdt":7.6,"eth":11.2}}}`)
	}))
	defer srv.Close()

	shares, err := NewCoinGeckoClient(srv.URL, ClientOptions{}).MarketCapShares(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 58.1, shares["btc"], 1e-9)
	assert.InDelta(t, 7.6, shares["usdt"], 1e-9)
}

type staticRanks []string

func (s staticRanks) TopSymbols(context.Context, int) ([]string, error) { return s, nil }

func TestUniverse_IntersectsRankingWithPerpetuals(t *testing.T) {
	m := NewMockMarket(map[string]float64{})
	m.Perps = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	u := NewUniverse(staticRanks{"BTC", "USDT", "ETH", "XYZ", "BTC"}, m, 1000, nil)
	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, u.Symbols())
	assert.False(t, u.RefreshedAt().IsZero())

	static := NewUniverse(nil, m, 0, []string{"SOLUSDT", "DOGEUSDT"})
	require.NoError(t, static.Refresh(context.Background()))
	assert.Equal(t, []string{"SOLUSDT"}, static.Symbols())
}

type failingLister struct{}

func (failingLister) PerpetualSymbols(context.Context) ([]string, error) {
	return nil, errors.New("exchange down")
}

func TestUniverse_KeepsLastListOnFailure(t *testing.T) {
	m := NewMockMarket(map[string]float64{})
	m.Perps = []string{"BTCUSDT"}
	u := NewUniverse(nil, m, 0, []string{"BTCUSDT"})
	require.NoError(t, u.Refresh(context.Background()))

	u.exchange = failingLister{}
	assert.Error(t, u.Refresh(context.Background()))
	assert.Equal(t, []string{"BTCUSDT"}, u.Symbols())
}

type flakyMarket struct {
	*MockMarket
}

func (f flakyMarket) FundingRate(context.Context, string) (float64, error) {
	return 0, errors.New("premium index down")
}

func (f flakyMarket) TakerBuySellRatio(context.Context, string, string, int) (float64, error) {
	return 0, errors.New("taker ratio down")
}

func TestCollector_SnapshotDefaults(t *testing.T) {
	m := NewMockMarket(map[string]float64{"ETHUSDT": 2000})
	m.Imbalance = 0.3
	c := NewCollector(flakyMarket{m})

	snap, err := c.Snapshot(context.Background(), "ETHUSDT", "5m", 100)
	require.NoError(t, err)
	assert.Len(t, snap.Candles, 100)
	assert.Equal(t, 2000.0, snap.Ticker.LastPrice)
	assert.Equal(t, 0.0, snap.FundingRate)
	assert.Equal(t, 1.0, snap.TakerRatio)
	assert.Equal(t, 0.3, snap.Imbalance)
	assert.True(t, snap.HasOI)
	assert.InDelta(t, 2000*1_000_000, snap.OpenInterestUSD(), 1e-3)
}

func TestCollector_SnapshotRequiresCandles(t *testing.T) {
	m := NewMockMarket(map[string]float64{"ETHUSDT": 2000})
	m.Fail["ETHUSDT"] = errors.New("klines down")
	_, err := NewCollector(m).Snapshot(context.Background(), "ETHUSDT", "5m", 100)
	assert.Error(t, err)
}

func TestCollector_ChangePct(t *testing.T) {
	m := NewMockMarket(map[string]float64{"BTCUSDT": 100})
	m.Series["BTCUSDT"] = []model.Candle{{Close: 90}, {Close: 100}, {Close: 95}, {Close: 97}, {Close: 99}}
	ch, err := NewCollector(m).ChangePct(context.Background(), "BTCUSDT", "5m", 4)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, ch, 1e-9)
}
