package predictor

import (
	"math"
	"time"

	"SignalSentinel/internal/model"
)

// TierStats is the record of one tier.
type TierStats struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// Stats summarizes resolved trades.
type Stats struct {
	Total       int                      `json:"total"`
	Wins        int                      `json:"wins"`
	WinRate     float64                  `json:"win_rate"`
	ByTier      map[model.Tier]TierStats `json:"by_tier"`
	LastTrained *time.Time               `json:"last_trained,omitempty"`
}

// ComputeStats aggregates outcomes. Win rates are percentages rounded to one decimal.
func ComputeStats(outcomes []model.OutcomeRecord, lastTrained time.Time) Stats {
	s := Stats{ByTier: make(map[model.Tier]TierStats)}
	for _, o := range outcomes {
		t := s.ByTier[o.Tier]
		t.Total++
		s.Total++
		if o.Outcome == model.OutcomeWin {
			t.Wins++
			s.Wins++
		}
		s.ByTier[o.Tier] = t
	}
	s.WinRate = rate(s.Wins, s.Total)
	for tier, t := range s.ByTier {
		t.WinRate = rate(t.Wins, t.Total)
		s.ByTier[tier] = t
	}
	if !lastTrained.IsZero() {
		s.LastTrained = &lastTrained
	}
	return s
}

func rate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(total)*1000) / 10
}
