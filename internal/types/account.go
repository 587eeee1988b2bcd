package types

import (
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// LifecycleState is the derived state of the position/order state machine.
type LifecycleState string

const (
	StateFlat        LifecycleState = "FLAT"
	StateBuyPending  LifecycleState = "BUY_PENDING"
	StateHeld        LifecycleState = "HELD"
	StateSellPending LifecycleState = "SELL_PENDING"
)

func (s LifecycleState) String() string {
	return string(s)
}

// Position is the single tracked holding.
type Position struct {
	// HeldQuantity is zero when flat.
	HeldQuantity decimal.Decimal `json:"held_quantity"`
	// EntryPrice is set only while HeldQuantity > 0.
	EntryPrice optional.Option[decimal.Decimal] `json:"entry_price"`
}

// IsFlat reports whether nothing is held.
func (p Position) IsFlat() bool {
	return !p.HeldQuantity.IsPositive()
}

// Balances are the cached free balances refreshed each cycle.
type Balances struct {
	Cash decimal.Decimal `json:"cash"`
	Coin decimal.Decimal `json:"coin"`
}

// TradingSnapshot is a value copy of the lifecycle manager's state.
type TradingSnapshot struct {
	State       LifecycleState                    `json:"state"`
	Position    Position                          `json:"position"`
	Outstanding optional.Option[OutstandingOrder] `json:"outstanding"`
}
