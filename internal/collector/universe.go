package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Universe is the set of symbols eligible for scanning: the top coins by market cap that
// also trade as USDT perpetuals. The last good list is kept when a refresh fails.
type Universe struct {
	ranks    RankSource
	exchange SymbolLister
	top      int
	static   []string

	mu          sync.RWMutex
	symbols     []string
	refreshedAt time.Time
}

// NewUniverse creates a universe. ranks may be nil, in which case static is intersected
// with the exchange listing instead of the market-cap ranking.
func NewUniverse(ranks RankSource, exchange SymbolLister, top int, static []string) *Universe {
	return &Universe{ranks: ranks, exchange: exchange, top: top, static: static}
}

// Refresh rebuilds the symbol list.
func (u *Universe) Refresh(ctx context.Context) error {
	perps, err := u.exchange.PerpetualSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list perpetuals: %w", err)
	}
	tradable := make(map[string]bool, len(perps))
	for _, s := range perps {
		tradable[s] = true
	}

	var candidates []string
	if u.ranks != nil {
		bases, err := u.ranks.TopSymbols(ctx, u.top)
		if err != nil {
			return fmt.Errorf("rank coins: %w", err)
		}
		for _, b := range bases {
			candidates = append(candidates, b+"USDT")
		}
	} else {
		candidates = u.static
	}

	seen := make(map[string]bool, len(candidates))
	var symbols []string
	for _, s := range candidates {
		if tradable[s] && !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}

	u.mu.Lock()
	u.symbols = symbols
	u.refreshedAt = time.Now()
	u.mu.Unlock()
	log.Info().Int("symbols", len(symbols)).Int("perpetuals", len(perps)).Msg("universe refreshed")
	return nil
}

// Symbols returns a copy of the current list, in market-cap order.
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]string(nil), u.symbols...)
}

// RefreshedAt reports when the list was last rebuilt.
func (u *Universe) RefreshedAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.refreshedAt
}
