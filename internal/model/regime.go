package model

import "time"

// DominanceSample is one reading of the two market-share series.
type DominanceSample struct {
	Time time.Time `json:"time"`
	BTC  float64   `json:"btc"`  // reference-asset share of total market cap, percent
	USDT float64   `json:"usdt"` // stablecoin share of total market cap, percent
}

// Trend labels the short-horizon direction of one series.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendFlat    Trend = "flat"
)

// Bias is the fast-path directional permission.
type Bias string

const (
	BiasLongOK      Bias = "long_ok"
	BiasShortOK     Bias = "short_ok"
	BiasBTCLongOnly Bias = "btc_long_only"
	BiasNeutral     Bias = "neutral"
	BiasBlocked     Bias = "blocked"
)

// RegimeSignal is the fast bias computed from the rolling sample window.
type RegimeSignal struct {
	USDTTrend    Trend     `json:"usdt_trend"`
	BTCTrend     Trend     `json:"btc_trend"`
	USDTVelocity float64   `json:"usdt_velocity"`
	BTCVelocity  float64   `json:"btc_velocity"`
	USDTAccel    float64   `json:"usdt_accel"`
	BTCAccel     float64   `json:"btc_accel"`
	Bias         Bias      `json:"bias"`
	Reason       string    `json:"reason"`
	SampleCount  int       `json:"sample_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MacroCategory is the slow macro regime classification.
type MacroCategory string

const (
	RiskOnAlt MacroCategory = "risk_on_alt"
	RiskOnBTC MacroCategory = "risk_on_btc"
	RiskOff   MacroCategory = "risk_off"
	Neutral   MacroCategory = "neutral"
)

// MacroRegime is the slow regime derived from dominance levels.
type MacroRegime struct {
	Category   MacroCategory `json:"category"`
	AllowLong  bool          `json:"allow_long"`
	AllowShort bool          `json:"allow_short"`
	BTC        float64       `json:"btc"`
	USDT       float64       `json:"usdt"`
	Bias       string        `json:"bias"`
	Source     string        `json:"source"`
	Estimated  bool          `json:"estimated"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// DominanceReading is one resolved pair of dominance values with provenance.
// Estimated is set whenever either value did not come from a live source.
type DominanceReading struct {
	BTC        float64   `json:"btc"`
	USDT       float64   `json:"usdt"`
	BTCSource  string    `json:"btc_source"`
	USDTSource string    `json:"usdt_source"`
	Estimated  bool      `json:"estimated"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// RegimeShift is published when successive slow readings move sharply.
type RegimeShift struct {
	BTC       float64       `json:"btc"`
	USDT      float64       `json:"usdt"`
	BTCDelta  float64       `json:"btc_delta"`
	USDTDelta float64       `json:"usdt_delta"`
	Category  MacroCategory `json:"category"`
	Bias      string        `json:"bias"`
	At        time.Time     `json:"at"`
}
