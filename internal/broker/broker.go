// Package broker is the exchange boundary: balances, prices, historical candles
// and resting limit orders for a single symbol.
package broker

import (
	"context"
	"time"

	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

// Interval1m is the one-minute candle interval used for seeding.
const Interval1m = "1m"

// ErrUnknownOrder is carried in the cause of errors about order ids the
// broker does not recognise, such as cancelling an order that already filled.
var ErrUnknownOrder = errors.New(errors.ErrCodeDataNotFound, "order unknown to broker")

// Broker is the set of exchange operations the trading loop needs.
//
// Failures are *errors.Error values coded ErrCodeBrokerRequest for transient
// problems (transport, rate limit, timeout) or ErrCodeBrokerRejection when the
// exchange refused the request (precision, balance, unknown order).
type Broker interface {
	// GetBalance returns the free balance of asset.
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	// GetPrice returns the latest trade price of symbol.
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// GetHistoricalCandles returns candles covering the last lookback, oldest first.
	GetHistoricalCandles(ctx context.Context, symbol string, interval string, lookback time.Duration) ([]types.Candle, error)
	// PlaceLimitOrder places a resting limit order and returns the broker order id.
	PlaceLimitOrder(ctx context.Context, order types.LimitOrderRequest) (string, error)
	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, symbol string, orderID string) error
	// ListOpenOrders returns the ids of open orders for symbol. An empty result
	// means nothing is resting.
	ListOpenOrders(ctx context.Context, symbol string) ([]string, error)
}
