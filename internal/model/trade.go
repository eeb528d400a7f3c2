package model

import "time"

// TradeStatus is the lifecycle state of an emitted signal.
type TradeStatus string

const (
	StatusOpen       TradeStatus = "open"
	StatusClosedWin  TradeStatus = "closed_win"
	StatusClosedLoss TradeStatus = "closed_loss"
)

// ActiveTrade is an emitted signal being tracked until it resolves.
type ActiveTrade struct {
	Signal     *Signal     `json:"signal"`
	TargetsHit int         `json:"targets_hit"`
	Status     TradeStatus `json:"status"`
	OpenedAt   time.Time   `json:"opened_at"`
	LastPrice  float64     `json:"last_price"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// EventKind is the kind of lifecycle event.
type EventKind string

const (
	EventTargetHit EventKind = "target_hit"
	EventStopHit   EventKind = "stop_hit"
)

// LifecycleEvent is published whenever an active trade progresses.
type LifecycleEvent struct {
	SignalID     string      `json:"signal_id"`
	Symbol       string      `json:"symbol"`
	Class        TradeClass  `json:"class"`
	Direction    Direction   `json:"direction"`
	Tier         Tier        `json:"tier"`
	Kind         EventKind   `json:"kind"`
	Target       int         `json:"target,omitempty"` // 1-based, set for target_hit
	Price        float64     `json:"price"`
	TargetsHit   int         `json:"targets_hit"`
	TotalTargets int         `json:"total_targets"`
	Status       TradeStatus `json:"status"`
	At           time.Time   `json:"at"`
}

// Outcome labels.
const (
	OutcomeLoss = 0
	OutcomeWin  = 1
)

// OutcomeRecord is one resolved trade kept as estimator training history.
type OutcomeRecord struct {
	SignalID  string     `json:"signal_id"`
	Symbol    string     `json:"symbol"`
	Class     TradeClass `json:"class"`
	Tier      Tier       `json:"tier"`
	Direction Direction  `json:"direction"`
	Score     float64    `json:"score"`
	Outcome   int        `json:"outcome"`
	Features  []float64  `json:"features"`
	ClosedAt  time.Time  `json:"closed_at"`
}
