package model

// Divergence is the label produced by price/oscillator divergence detection.
type Divergence string

const (
	DivergenceNone    Divergence = "none"
	DivergenceBullish Divergence = "bullish"
	DivergenceBearish Divergence = "bearish"
)

// Pattern is a candlestick pattern label.
type Pattern string

const (
	PatternHammer           Pattern = "Hammer"
	PatternDoji             Pattern = "Doji"
	PatternBullishEngulfing Pattern = "Bullish Engulfing"
	PatternBearishEngulfing Pattern = "Bearish Engulfing"
)

// Bullish reports whether the pattern supports a long entry.
func (p Pattern) Bullish() bool {
	return p == PatternHammer || p == PatternBullishEngulfing
}

// Bearish reports whether the pattern supports a short entry.
func (p Pattern) Bearish() bool {
	return p == PatternBearishEngulfing
}

// Pivots holds classic floor pivot levels.
type Pivots struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

// IndicatorSet holds all computed technical indicators for one instrument at one instant.
type IndicatorSet struct {
	Price float64 `json:"price"`

	RSI14 float64 `json:"rsi14"`
	RSI7  float64 `json:"rsi7"`

	MACD         float64 `json:"macd"`
	MACDSignal   float64 `json:"macd_signal"`
	MACDHist     float64 `json:"macd_hist"`
	MACDHistPrev float64 `json:"macd_hist_prev"`

	BBUpper float64 `json:"bb_upper"`
	BBMid   float64 `json:"bb_mid"`
	BBLower float64 `json:"bb_lower"`

	ATR14  float64 `json:"atr14"`
	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`
	VWAP   float64 `json:"vwap"`

	EMA9   float64 `json:"ema9"`
	EMA21  float64 `json:"ema21"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`

	VolCurrent float64 `json:"vol_current"`
	VolSMA20   float64 `json:"vol_sma20"`
	VolSMA5    float64 `json:"vol_sma5"`

	OBV     float64 `json:"obv"`
	OBVPrev float64 `json:"obv_prev"`

	RSIDivergence  Divergence `json:"divergence_rsi"`
	MACDDivergence Divergence `json:"divergence_macd"`
	Patterns       []Pattern  `json:"patterns"`
	Pivots         Pivots     `json:"pivots"`
	POC            float64    `json:"poc"`
}

// VolRatio is the current bar's volume relative to its 20-bar average.
func (s *IndicatorSet) VolRatio() float64 {
	return s.VolCurrent / (s.VolSMA20 + 1e-9)
}

// BullishStack reports EMA9 > EMA21 > EMA50.
func (s *IndicatorSet) BullishStack() bool {
	return s.EMA9 > s.EMA21 && s.EMA21 > s.EMA50
}

// BearishStack reports EMA9 < EMA21 < EMA50.
func (s *IndicatorSet) BearishStack() bool {
	return s.EMA9 < s.EMA21 && s.EMA21 < s.EMA50
}
