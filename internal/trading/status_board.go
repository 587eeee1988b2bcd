package trading

import (
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/metrics"
	"github.com/rxtech-lab/indicator-bot/internal/types"
)

// StatusBoard holds the value copy of the bot state that readers outside the
// loop (the status server) see.
type StatusBoard struct {
	mu     sync.RWMutex
	status types.BotStatus
}

// NewStatusBoard creates an empty board for symbol.
func NewStatusBoard(symbol string) *StatusBoard {
	return &StatusBoard{
		mu: sync.RWMutex{},
		status: types.BotStatus{
			Symbol:       symbol,
			StartedAt:    time.Time{},
			LastTickAt:   time.Time{},
			LastCycleAt:  time.Time{},
			Cycles:       0,
			Trading:      types.TradingSnapshot{State: types.StateFlat},
			Balances:     types.Balances{},
			Indicators:   optional.None[types.IndicatorSnapshot](),
			LastDecision: types.DecisionNone,
			BreakerState: "closed",
			LastError:    "",
		},
	}
}

// Status returns a copy of the current status.
func (b *StatusBoard) Status() types.BotStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.status
}

// SetBreakerState records the broker circuit breaker state.
func (b *StatusBoard) SetBreakerState(state string) {
	b.update(func(s *types.BotStatus) {
		s.BreakerState = state
	})
}

func (b *StatusBoard) update(fn func(s *types.BotStatus)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn(&b.status)
}

var _ metrics.StatusSource = (*StatusBoard)(nil)
