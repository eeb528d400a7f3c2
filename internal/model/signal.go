package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a recommendation.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Tier grades a scored candidate.
type Tier string

const (
	TierA Tier = "A+"
	TierB Tier = "B+"
	TierC Tier = "C+"
)

// Tiers lists all tiers from highest to lowest.
var Tiers = []Tier{TierA, TierB, TierC}

// Priority orders tiers when ranking candidates; higher sorts first.
func (t Tier) Priority() int {
	switch t {
	case TierA:
		return 3
	case TierB:
		return 2
	case TierC:
		return 1
	default:
		return 0
	}
}

// ParseTier accepts "A+", "a", "A" and similar spellings.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(s), "+")) {
	case "A":
		return TierA, nil
	case "B":
		return TierB, nil
	case "C":
		return TierC, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// TradeClass is the holding-duration bucket of an instrument scan.
type TradeClass string

const (
	Scalp TradeClass = "scalp"
	Day   TradeClass = "day"
	Swing TradeClass = "swing"
)

// Classes lists every trade class from shortest to longest duration.
var Classes = []TradeClass{Scalp, Day, Swing}

// ParseClass validates a trade class name.
func ParseClass(s string) (TradeClass, error) {
	c := TradeClass(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Classes {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown trade class %q", s)
}

// Index returns the class position used as a numeric feature.
func (c TradeClass) Index() int {
	for i, known := range Classes {
		if c == known {
			return i
		}
	}
	return -1
}

// Phase is a detected market-cycle phase. The zero value means none.
type Phase string

const (
	PhaseNone               Phase = ""
	PhaseAccumulationSpring Phase = "accumulation_spring"
	PhaseMarkupSOS          Phase = "markup_sos"
	PhaseDistributionUTAD   Phase = "distribution_utad"
	PhaseMarkdownSOW        Phase = "markdown_sow"
)

// Label returns a human readable description of the phase.
func (p Phase) Label() string {
	switch p {
	case PhaseAccumulationSpring:
		return "Accumulation Spring (demand zone)"
	case PhaseMarkupSOS:
		return "Markup, Sign of Strength"
	case PhaseDistributionUTAD:
		return "Distribution UTAD (supply zone)"
	case PhaseMarkdownSOW:
		return "Markdown, Sign of Weakness"
	default:
		return ""
	}
}

// Criteria are the seven hard criteria evaluated for grading.
type Criteria struct {
	Trend       bool `json:"trend"`
	Momentum    bool `json:"momentum"`
	Volume      bool `json:"volume"`
	Structure   bool `json:"structure"`
	Location    bool `json:"location"`
	Flow        bool `json:"flow"`
	Correlation bool `json:"correlation"`
}

// Count returns how many criteria are met.
func (c Criteria) Count() int {
	n := 0
	for _, ok := range []bool{c.Trend, c.Momentum, c.Volume, c.Structure, c.Location, c.Flow, c.Correlation} {
		if ok {
			n++
		}
	}
	return n
}

// RegimeContext is the regime snapshot attached to a signal at emission.
type RegimeContext struct {
	Category   MacroCategory `json:"category"`
	ScalpBias  Bias          `json:"scalp_bias,omitempty"`
	BTC        float64       `json:"btc_dominance"`
	USDT       float64       `json:"usdt_dominance"`
	Estimated  bool          `json:"estimated"`
	RefChange  float64       `json:"ref_change"`
	Confidence float64       `json:"probability"`
}

// Signal is a graded trade recommendation. It is not mutated after emission.
type Signal struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Class       TradeClass     `json:"class"`
	Direction   Direction      `json:"direction"`
	Tier        Tier           `json:"tier"`
	Score       float64        `json:"score"`
	Entry       float64        `json:"entry"`
	Stop        float64        `json:"stop"`
	Targets     []float64      `json:"targets"`
	Leverage    int            `json:"leverage"`
	Criteria    Criteria       `json:"criteria"`
	CriteriaMet int            `json:"criteria_met"`
	Phase       Phase          `json:"phase,omitempty"`
	PriceAction []string       `json:"price_action,omitempty"`
	Patterns    []Pattern      `json:"patterns,omitempty"`
	Confluences []string       `json:"confluences"`
	Correlation float64        `json:"correlation"`
	Outperform  float64        `json:"outperform"`
	VolRatio    float64        `json:"vol_ratio"`
	RSI14       float64        `json:"rsi14"`
	FundingRate float64        `json:"funding_rate"`
	Imbalance   float64        `json:"imbalance"`
	Features    []float64      `json:"features,omitempty"`
	Regime      *RegimeContext `json:"regime,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Risk is the absolute distance between entry and stop.
func (s *Signal) Risk() float64 {
	if s.Entry > s.Stop {
		return s.Entry - s.Stop
	}
	return s.Stop - s.Entry
}

// RejectReason classifies a designed rejection.
type RejectReason string

const (
	RejectNoPrice         RejectReason = "no_price"
	RejectNoDirection     RejectReason = "no_direction"
	RejectVolumeFloor     RejectReason = "volume_floor"
	RejectCorrelationKill RejectReason = "correlation_kill"
	RejectScoreTooLow     RejectReason = "score_too_low"
	RejectVolatilityFloor RejectReason = "volatility_floor"
	RejectNoTier          RejectReason = "no_tier"
	RejectRiskDegenerate  RejectReason = "risk_degenerate"
)

// Rejection is the scorer's "no signal" result. It is a value, not an error.
type Rejection struct {
	Symbol    string       `json:"symbol"`
	Reason    RejectReason `json:"reason"`
	Direction Direction    `json:"direction,omitempty"`
	Score     float64      `json:"score"`
	Details   []string     `json:"details,omitempty"`
}

func (r *Rejection) String() string {
	if len(r.Details) == 0 {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, strings.Join(r.Details, ", "))
}
