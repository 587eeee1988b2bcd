package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// BotStatus is the read-only view of the running bot published after every tick.
type BotStatus struct {
	Symbol       string                             `json:"symbol"`
	StartedAt    time.Time                          `json:"started_at"`
	LastTickAt   time.Time                          `json:"last_tick_at"`
	LastCycleAt  time.Time                          `json:"last_cycle_at"`
	Cycles       uint64                             `json:"cycles"`
	Trading      TradingSnapshot                    `json:"trading"`
	Balances     Balances                           `json:"balances"`
	Indicators   optional.Option[IndicatorSnapshot] `json:"indicators"`
	LastDecision Decision                           `json:"last_decision"`
	BreakerState string                             `json:"breaker_state"`
	LastError    string                             `json:"last_error,omitempty"`
}
