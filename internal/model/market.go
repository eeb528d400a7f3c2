package model

import "time"

// Candle represents a single candlestick bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker is the 24h rolling ticker of one instrument.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"last_price"`
	QuoteVolume float64 `json:"quote_volume"`
}

// Snapshot bundles everything fetched for one instrument in one scan.
type Snapshot struct {
	Symbol       string
	Candles      []Candle
	Ticker       Ticker
	OpenInterest float64 // contracts, 0 when unknown
	HasOI        bool
	FundingRate  float64
	Imbalance    float64 // order book, in [-1,1]
	TakerRatio   float64
	FetchedAt    time.Time
}

// OpenInterestUSD returns open interest valued at the last price.
func (s *Snapshot) OpenInterestUSD() float64 {
	return s.OpenInterest * s.Ticker.LastPrice
}

// ChangePct returns the percent change between the close n bars ago and the last close.
// It returns 0 when the series is too short.
func ChangePct(candles []Candle, n int) float64 {
	if n <= 0 || len(candles) < n+1 {
		return 0
	}
	first := candles[len(candles)-1-n].Close
	if first == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - first) / first * 100
}
