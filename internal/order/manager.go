// Package order owns the single-position, single-order lifecycle state machine.
//
// The manager is the only writer of the position and the outstanding order.
// Its state is derived from those two values:
//
//	FLAT         no order, nothing held
//	BUY_PENDING  a buy order is outstanding
//	HELD         no order, quantity held
//	SELL_PENDING a sell order is outstanding
package order

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/clock"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultQuantityPrecision is the number of decimal places order quantities are truncated to.
const DefaultQuantityPrecision int32 = 6

// divisionPrecision is the scale used for cash/price before truncation.
const divisionPrecision int32 = 16

// Config configures the Manager.
type Config struct {
	Symbol string
	// MinimumCash is the smallest cash balance an entry is attempted with.
	MinimumCash decimal.Decimal
	// QuantityPrecision is the number of decimals kept when sizing an entry.
	QuantityPrecision int32
}

// DefaultConfig returns a config for symbol with a minimum cash of 10.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:            symbol,
		MinimumCash:       decimal.NewFromInt(10),
		QuantityPrecision: DefaultQuantityPrecision,
	}
}

// Observer callbacks receive order lifecycle events. Nil fields are skipped.
type Observer struct {
	OnPlaced    *func(order types.OutstandingOrder)
	OnFilled    *func(order types.OutstandingOrder)
	OnCancelled *func(order types.OutstandingOrder)
	// OnFailed is called when placing or cancelling an order fails.
	OnFailed *func(order types.OutstandingOrder, err error)
}

// Manager translates decisions into broker orders and reconciles broker
// order status back into local state.
type Manager struct {
	config      Config
	broker      broker.Broker
	clock       clock.Clock
	log         *logger.Logger
	observer    Observer
	position    types.Position
	outstanding optional.Option[types.OutstandingOrder]
	newOrderID  func() string
}

// NewManager creates a Manager that starts FLAT.
func NewManager(b broker.Broker, config Config, clk clock.Clock, log *logger.Logger, observer Observer) (*Manager, error) {
	if config.Symbol == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "order manager requires a symbol")
	}

	if config.MinimumCash.IsNegative() {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "minimum cash cannot be negative")
	}

	if config.QuantityPrecision < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "quantity precision cannot be negative, got %d", config.QuantityPrecision)
	}

	return &Manager{
		config:      config,
		broker:      b,
		clock:       clk,
		log:         log,
		observer:    observer,
		position:    types.Position{HeldQuantity: decimal.Zero, EntryPrice: optional.None[decimal.Decimal]()},
		outstanding: optional.None[types.OutstandingOrder](),
		newOrderID:  uuid.NewString,
	}, nil
}

// State derives the lifecycle state from the position and the outstanding order.
func (m *Manager) State() types.LifecycleState {
	if m.outstanding.IsSome() {
		if m.outstanding.Unwrap().Side == types.OrderSideBuy {
			return types.StateBuyPending
		}

		return types.StateSellPending
	}

	if m.position.HeldQuantity.IsPositive() {
		return types.StateHeld
	}

	return types.StateFlat
}

// Position returns a copy of the tracked position.
func (m *Manager) Position() types.Position {
	return m.position
}

// Snapshot returns a value copy of the state machine.
func (m *Manager) Snapshot() types.TradingSnapshot {
	return types.TradingSnapshot{
		State:       m.State(),
		Position:    m.position,
		Outstanding: m.outstanding,
	}
}

// Restore adopts an existing holding. It is only allowed while FLAT.
func (m *Manager) Restore(position types.Position) error {
	if m.State() != types.StateFlat {
		return errors.Newf(errors.ErrCodeInvalidParameter, "cannot restore position while %s", m.State())
	}

	if position.HeldQuantity.IsNegative() {
		return errors.New(errors.ErrCodeInvalidParameter, "held quantity cannot be negative")
	}

	if position.HeldQuantity.IsPositive() && position.EntryPrice.IsNone() {
		return errors.New(errors.ErrCodeInvalidParameter, "a held position needs an entry price")
	}

	if position.HeldQuantity.IsZero() {
		position.EntryPrice = optional.None[decimal.Decimal]()
	}

	m.position = position
	m.log.Info("Restored position",
		zap.String("held_quantity", position.HeldQuantity.String()),
		zap.Stringer("state", m.State()),
	)

	return nil
}

// EntryQuantity sizes an entry: cash/price truncated toward zero.
func (m *Manager) EntryQuantity(price, cash decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}

	return cash.DivRound(price, divisionPrecision).Truncate(m.config.QuantityPrecision)
}

// RequestEntry places a limit buy spending all of cash at price.
// It reports whether an order was placed. Refusals are not errors.
func (m *Manager) RequestEntry(ctx context.Context, price, cash decimal.Decimal) (bool, error) {
	if cash.LessThan(m.config.MinimumCash) {
		m.log.Info("Entry refused: not enough cash",
			zap.String("cash", cash.String()),
			zap.String("minimum_cash", m.config.MinimumCash.String()),
		)

		return false, nil
	}

	if state := m.State(); state != types.StateFlat {
		m.log.Info("Entry refused: not flat", zap.Stringer("state", state))

		return false, nil
	}

	quantity := m.EntryQuantity(price, cash)
	if !quantity.IsPositive() {
		m.log.Info("Entry refused: quantity rounds to zero",
			zap.String("cash", cash.String()),
			zap.String("price", price.String()),
		)

		return false, nil
	}

	return m.place(ctx, types.OrderSideBuy, price, quantity)
}

// ExitQuantity sizes an exit: the held quantity, capped by the free coin
// balance truncated to the quantity precision.
func (m *Manager) ExitQuantity(coin decimal.Decimal) decimal.Decimal {
	return decimal.Min(m.position.HeldQuantity, coin.Truncate(m.config.QuantityPrecision))
}

// RequestExit places a limit sell at price for the held quantity, capped by
// the free coin balance. It reports whether an order was placed.
func (m *Manager) RequestExit(ctx context.Context, price, coin decimal.Decimal) (bool, error) {
	if state := m.State(); state != types.StateHeld {
		m.log.Info("Exit refused: not held", zap.Stringer("state", state))

		return false, nil
	}

	if !price.IsPositive() {
		return false, errors.Newf(errors.ErrCodeInvalidParameter, "exit price must be positive, got %s", price)
	}

	quantity := m.ExitQuantity(coin)
	if !quantity.IsPositive() {
		m.log.Info("Exit refused: no coin available",
			zap.String("coin", coin.String()),
			zap.String("held_quantity", m.position.HeldQuantity.String()),
		)

		return false, nil
	}

	return m.place(ctx, types.OrderSideSell, price, quantity)
}

func (m *Manager) place(ctx context.Context, side types.OrderSide, price, quantity decimal.Decimal) (bool, error) {
	request := types.LimitOrderRequest{
		Symbol:        m.config.Symbol,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		TimeInForce:   types.TimeInForceGTC,
		ClientOrderID: m.newOrderID(),
	}

	order := types.OutstandingOrder{
		OrderID:           "",
		ClientOrderID:     request.ClientOrderID,
		Side:              side,
		RequestedPrice:    price,
		RequestedQuantity: quantity,
		PlacedAt:          m.clock.Now(),
	}

	orderID, err := m.broker.PlaceLimitOrder(ctx, request)
	if err != nil {
		m.log.Error("Failed to place order",
			zap.String("side", string(side)),
			zap.String("price", price.String()),
			zap.String("quantity", quantity.String()),
			zap.Error(err),
		)
		m.emitFailed(order, err)

		return false, err
	}

	order.OrderID = orderID
	m.outstanding = optional.Some(order)

	m.log.Info("Order placed",
		zap.String("order_id", orderID),
		zap.String("side", string(side)),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()),
	)
	m.emit(m.observer.OnPlaced, order)

	return true, nil
}

// Reconcile folds the broker's open-order list into local state.
// A tracked order missing from openOrderIDs is filled. A buy still open is
// cancelled once; a sell still open is left resting.
func (m *Manager) Reconcile(ctx context.Context, openOrderIDs []string) error {
	if m.outstanding.IsNone() {
		return nil
	}

	order := m.outstanding.Unwrap()

	if !slices.Contains(openOrderIDs, order.OrderID) {
		m.fill(order)

		return nil
	}

	if order.Side == types.OrderSideSell {
		m.log.Debug("Sell order still open", zap.String("order_id", order.OrderID))

		return nil
	}

	m.log.Info("Order not filled, cancelling order", zap.String("order_id", order.OrderID))

	if err := m.broker.CancelOrder(ctx, m.config.Symbol, order.OrderID); err != nil {
		if errors.Is(err, broker.ErrUnknownOrder) {
			err = errors.Wrapf(errors.ErrCodeReconciliationConflict, err,
				"order %s is listed open but unknown to cancel", order.OrderID)
		}

		m.log.Error("Failed to cancel order", zap.String("order_id", order.OrderID), zap.Error(err))
		m.emitFailed(order, err)

		return err
	}

	m.outstanding = optional.None[types.OutstandingOrder]()
	m.position = types.Position{HeldQuantity: decimal.Zero, EntryPrice: optional.None[decimal.Decimal]()}
	m.emit(m.observer.OnCancelled, order)

	return nil
}

func (m *Manager) fill(order types.OutstandingOrder) {
	m.outstanding = optional.None[types.OutstandingOrder]()

	switch order.Side {
	case types.OrderSideBuy:
		m.position = types.Position{
			HeldQuantity: order.RequestedQuantity,
			EntryPrice:   optional.Some(order.RequestedPrice),
		}
	case types.OrderSideSell:
		m.position = types.Position{HeldQuantity: decimal.Zero, EntryPrice: optional.None[decimal.Decimal]()}
	}

	m.log.Info("Order filled",
		zap.String("order_id", order.OrderID),
		zap.String("side", string(order.Side)),
		zap.Stringer("state", m.State()),
	)
	m.emit(m.observer.OnFilled, order)
}

func (m *Manager) emit(callback *func(order types.OutstandingOrder), order types.OutstandingOrder) {
	if callback != nil {
		(*callback)(order)
	}
}

func (m *Manager) emitFailed(order types.OutstandingOrder, err error) {
	if m.observer.OnFailed != nil {
		(*m.observer.OnFailed)(order, err)
	}
}
