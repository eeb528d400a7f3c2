package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalSentinel/internal/model"
)

// MockMarket returns controllable fixed data for development and testing.
type MockMarket struct {
	mu sync.Mutex

	Prices     map[string]float64
	Series     map[string][]model.Candle
	Volume     float64
	OI         float64
	Funding    float64
	Imbalance  float64
	TakerRatio float64
	Perps      []string
	Fail       map[string]error // per symbol
}

// NewMockMarket creates a mock whose generated candles hover around each price.
func NewMockMarket(prices map[string]float64) *MockMarket {
	return &MockMarket{
		Prices:     prices,
		Series:     map[string][]model.Candle{},
		Volume:     50_000_000,
		OI:         1_000_000,
		TakerRatio: 1.0,
		Fail:       map[string]error{},
	}
}

func (m *MockMarket) Name() string { return "mock" }

// SetPrice changes the last price of symbol.
func (m *MockMarket) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	m.Prices[symbol] = price
	m.mu.Unlock()
}

func (m *MockMarket) price(symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[symbol]; err != nil {
		return 0, err
	}
	p, ok := m.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("mock: unknown symbol %s", symbol)
	}
	return p, nil
}

func (m *MockMarket) Candles(_ context.Context, symbol, _ string, limit int) ([]model.Candle, error) {
	p, err := m.price(symbol)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	series, ok := m.Series[symbol]
	m.mu.Unlock()
	if ok {
		if len(series) > limit {
			series = series[len(series)-limit:]
		}
		return series, nil
	}
	return generateMockCandles(p, limit), nil
}

func (m *MockMarket) OpenInterest(_ context.Context, symbol string) (float64, bool, error) {
	if _, err := m.price(symbol); err != nil {
		return 0, false, err
	}
	return m.OI, m.OI > 0, nil
}

func (m *MockMarket) FundingRate(_ context.Context, symbol string) (float64, error) {
	if _, err := m.price(symbol); err != nil {
		return 0, err
	}
	return m.Funding, nil
}

func (m *MockMarket) OrderBookImbalance(_ context.Context, symbol string, _ int) (float64, error) {
	if _, err := m.price(symbol); err != nil {
		return 0, err
	}
	return m.Imbalance, nil
}

func (m *MockMarket) TakerBuySellRatio(_ context.Context, symbol, _ string, _ int) (float64, error) {
	if _, err := m.price(symbol); err != nil {
		return 0, err
	}
	return m.TakerRatio, nil
}

func (m *MockMarket) Ticker24h(_ context.Context, symbol string) (model.Ticker, error) {
	p, err := m.price(symbol)
	if err != nil {
		return model.Ticker{}, err
	}
	return model.Ticker{Symbol: symbol, LastPrice: p, QuoteVolume: m.Volume}, nil
}

func (m *MockMarket) PerpetualSymbols(_ context.Context) ([]string, error) {
	if m.Perps != nil {
		return m.Perps, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Prices))
	for s := range m.Prices {
		out = append(out, s)
	}
	return out, nil
}

func generateMockCandles(basePrice float64, count int) []model.Candle {
	candles := make([]model.Candle, count)
	start := time.Now().Add(-time.Duration(count) * 5 * time.Minute).Truncate(5 * time.Minute)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count+1)*0.001)
		candles[i] = model.Candle{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     p * 0.999,
			High:     p * 1.005,
			Low:      p * 0.995,
			Close:    p,
			Volume:   1000000,
		}
	}
	return candles
}
