package model

import "time"

// ClassQuota tracks emission bookkeeping for one trade class.
type ClassQuota struct {
	DayStart    time.Time    `json:"day_start"`
	Sent        map[Tier]int `json:"sent_today"`
	LastSend    time.Time    `json:"last_send"`
	HourHasTop  bool         `json:"hour_has_top_tier"`
	DayHasMid   bool         `json:"day_has_mid_tier"`
	DailyTarget int          `json:"daily_target"`
}

// Total returns the number of signals sent today across tiers.
func (q *ClassQuota) Total() int {
	n := 0
	for _, v := range q.Sent {
		n += v
	}
	return n
}

// Clone returns a deep copy.
func (q *ClassQuota) Clone() *ClassQuota {
	c := *q
	c.Sent = make(map[Tier]int, len(q.Sent))
	for k, v := range q.Sent {
		c.Sent[k] = v
	}
	return &c
}

// QuotaState is the persisted per-class quota bookkeeping.
type QuotaState struct {
	Classes   map[TradeClass]*ClassQuota `json:"classes"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *QuotaState) Clone() QuotaState {
	c := QuotaState{Classes: make(map[TradeClass]*ClassQuota, len(s.Classes)), UpdatedAt: s.UpdatedAt}
	for k, v := range s.Classes {
		c.Classes[k] = v.Clone()
	}
	return c
}
