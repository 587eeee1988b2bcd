package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

type TimeInForce string

type OrderEvent string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	// TimeInForceGTC keeps the order resting until filled or cancelled.
	TimeInForceGTC TimeInForce = "GTC"
)

const (
	OrderEventPlaced    OrderEvent = "PLACED"
	OrderEventFilled    OrderEvent = "FILLED"
	OrderEventCancelled OrderEvent = "CANCELLED"
	OrderEventFailed    OrderEvent = "FAILED"
)

// LimitOrderRequest is the broker-facing description of a resting limit order.
type LimitOrderRequest struct {
	Symbol        string          `json:"symbol" validate:"required"`
	Side          OrderSide       `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TimeInForce   TimeInForce     `json:"time_in_force"`
	ClientOrderID string          `json:"client_order_id"`
}

// OutstandingOrder is the single order that has been requested from the broker
// but not yet confirmed filled or cancelled.
type OutstandingOrder struct {
	OrderID           string          `json:"order_id"`
	ClientOrderID     string          `json:"client_order_id"`
	Side              OrderSide       `json:"side"`
	RequestedPrice    decimal.Decimal `json:"requested_price"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	PlacedAt          time.Time       `json:"placed_at"`
}

// OrderRecord is an order lifecycle event as written to the journal.
type OrderRecord struct {
	Timestamp time.Time
	Event     OrderEvent
	Order     OutstandingOrder
	Message   string
}
