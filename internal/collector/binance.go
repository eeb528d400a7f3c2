package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"SignalSentinel/internal/model"
)

// BinanceClient implements Market against the Binance USD-M futures REST API.
type BinanceClient struct {
	BaseURL string
	api     *apiClient
}

// NewBinanceClient creates a client with optional proxy support.
func NewBinanceClient(baseURL string, opts ClientOptions) *BinanceClient {
	return &BinanceClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		api:     newAPIClient("binance", opts),
	}
}

func (b *BinanceClient) Name() string { return "binance" }

func (b *BinanceClient) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	return b.api.getJSON(ctx, endpoint, b.BaseURL+path, q, out)
}

// Candles returns up to limit klines in chronological order.
func (b *BinanceClient) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	q := url.Values{"symbol": {symbol}, "interval": {interval}, "limit": {strconv.Itoa(limit)}}
	var raw [][]json.RawMessage
	if err := b.get(ctx, "klines", "/fapi/v1/klines", q, &raw); err != nil {
		return nil, err
	}
	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline %s: %w", symbol, err)
		}
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

func parseKline(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, errors.New("short kline row")
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return model.Candle{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		v, err := rawFloat(row[i+1])
		if err != nil {
			return model.Candle{}, err
		}
		vals[i] = v
	}
	return model.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

// rawFloat decodes a number that may be encoded as a JSON string.
func rawFloat(m json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(m, &f); err != nil {
		return 0, fmt.Errorf("parse number %s: %w", string(m), err)
	}
	return f, nil
}

func (b *BinanceClient) OpenInterest(ctx context.Context, symbol string) (float64, bool, error) {
	var out struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := b.get(ctx, "openInterest", "/fapi/v1/openInterest", url.Values{"symbol": {symbol}}, &out); err != nil {
		return 0, false, err
	}
	if out.OpenInterest == "" {
		return 0, false, nil
	}
	oi, err := strconv.ParseFloat(out.OpenInterest, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse open interest: %w", err)
	}
	return oi, true, nil
}

func (b *BinanceClient) FundingRate(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := b.get(ctx, "premiumIndex", "/fapi/v1/premiumIndex", url.Values{"symbol": {symbol}}, &out); err != nil {
		return 0, err
	}
	if out.LastFundingRate == "" {
		return 0, nil
	}
	return strconv.ParseFloat(out.LastFundingRate, 64)
}

func (b *BinanceClient) OrderBookImbalance(ctx context.Context, symbol string, depth int) (float64, error) {
	var out struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	q := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(depth)}}
	if err := b.get(ctx, "depth", "/fapi/v1/depth", q, &out); err != nil {
		return 0, err
	}
	bids, asks := sumQty(out.Bids), sumQty(out.Asks)
	if bids+asks == 0 {
		return 0, nil
	}
	return (bids - asks) / (bids + asks), nil
}

func sumQty(levels [][]string) float64 {
	var total float64
	for _, lv := range levels {
		if len(lv) < 2 {
			continue
		}
		if q, err := strconv.ParseFloat(lv[1], 64); err == nil {
			total += q
		}
	}
	return total
}

// TakerBuySellRatio returns the most recent taker buy/sell volume ratio.
func (b *BinanceClient) TakerBuySellRatio(ctx context.Context, symbol, period string, limit int) (float64, error) {
	var out []struct {
		BuySellRatio string `json:"buySellRatio"`
		Timestamp    int64  `json:"timestamp"`
	}
	q := url.Values{"symbol": {symbol}, "period": {period}, "limit": {strconv.Itoa(limit)}}
	if err := b.get(ctx, "takerlongshortRatio", "/futures/data/takerlongshortRatio", q, &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 1.0, nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return strconv.ParseFloat(out[len(out)-1].BuySellRatio, 64)
}

func (b *BinanceClient) Ticker24h(ctx context.Context, symbol string) (model.Ticker, error) {
	var out struct {
		Symbol      string `json:"symbol"`
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := b.get(ctx, "ticker24hr", "/fapi/v1/ticker/24hr", url.Values{"symbol": {symbol}}, &out); err != nil {
		return model.Ticker{}, err
	}
	last, err := strconv.ParseFloat(out.LastPrice, 64)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("parse last price: %w", err)
	}
	qv, err := strconv.ParseFloat(out.QuoteVolume, 64)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("parse quote volume: %w", err)
	}
	return model.Ticker{Symbol: symbol, LastPrice: last, QuoteVolume: qv}, nil
}

// PerpetualSymbols lists USDT-quoted perpetual contracts currently trading.
func (b *BinanceClient) PerpetualSymbols(ctx context.Context) ([]string, error) {
	var out struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			QuoteAsset   string `json:"quoteAsset"`
			ContractType string `json:"contractType"`
			Status       string `json:"status"`
		} `json:"symbols"`
	}
	if err := b.get(ctx, "exchangeInfo", "/fapi/v1/exchangeInfo", nil, &out); err != nil {
		return nil, err
	}
	var syms []string
	for _, s := range out.Symbols {
		if s.QuoteAsset == "USDT" && s.ContractType == "PERPETUAL" && s.Status == "TRADING" {
			syms = append(syms, s.Symbol)
		}
	}
	return syms, nil
}
