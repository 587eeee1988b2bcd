package broker

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

// GuardedCallbacks are optional hooks fired by Guarded.
type GuardedCallbacks struct {
	// OnError is called for every failed call with the operation name.
	OnError *func(op string, err error)
	// OnBreakerStateChange is called when the circuit breaker changes state.
	OnBreakerStateChange *func(from, to BreakerState)
}

// GuardedConfig configures Guarded.
type GuardedConfig struct {
	// Timeout bounds every individual call.
	Timeout time.Duration
	// MaxFailures is the number of consecutive request failures that opens the breaker.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
}

// DefaultGuardedConfig returns a 15s timeout and a 5-failure, 5-minute breaker.
func DefaultGuardedConfig() GuardedConfig {
	return GuardedConfig{
		Timeout:      15 * time.Second,
		MaxFailures:  5,
		ResetTimeout: 5 * time.Minute,
	}
}

// Guarded decorates a Broker with a per-call timeout and a circuit breaker.
// Only request failures count towards the breaker; rejections do not.
type Guarded struct {
	inner     Broker
	timeout   time.Duration
	breaker   *CircuitBreaker
	callbacks GuardedCallbacks
}

// NewGuarded wraps inner.
func NewGuarded(inner Broker, config GuardedConfig, callbacks GuardedCallbacks) *Guarded {
	breaker := NewCircuitBreaker(config.MaxFailures, config.ResetTimeout)
	breaker.IsFailure = errors.IsBrokerRequest
	breaker.IsIgnored = isCallerDone

	if callbacks.OnBreakerStateChange != nil {
		breaker.OnStateChange = *callbacks.OnBreakerStateChange
	}

	return &Guarded{
		inner:     inner,
		timeout:   config.Timeout,
		breaker:   breaker,
		callbacks: callbacks,
	}
}

// BreakerState returns the state of the underlying circuit breaker.
func (g *Guarded) BreakerState() BreakerState {
	return g.breaker.State()
}

// callerDoneError carries the caller's own context error through the breaker.
type callerDoneError struct {
	err error
}

func (e callerDoneError) Error() string { return e.err.Error() }

func (e callerDoneError) Unwrap() error { return e.err }

func isCallerDone(err error) bool {
	var done callerDoneError

	return stderrors.As(err, &done)
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	err := g.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		value, err := fn(callCtx)
		if err != nil {
			// the caller cancelled: not a broker failure
			if ctx.Err() != nil {
				return callerDoneError{err: ctx.Err()}
			}

			// uncoded per-call timeouts are transient request failures
			if errors.GetCode(err) == errors.ErrCodeUnknown &&
				(stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled)) {
				return errors.Wrapf(errors.ErrCodeBrokerRequest, err, "%s timed out", op)
			}

			return err
		}

		result = value

		return nil
	})

	var done callerDoneError
	if stderrors.As(err, &done) {
		return result, done.err
	}

	if err != nil && g.callbacks.OnError != nil {
		(*g.callbacks.OnError)(op, err)
	}

	return result, err
}

// GetBalance implements Broker.
func (g *Guarded) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return guard(ctx, g, "get_balance", func(ctx context.Context) (decimal.Decimal, error) {
		return g.inner.GetBalance(ctx, asset)
	})
}

// GetPrice implements Broker.
func (g *Guarded) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return guard(ctx, g, "get_price", func(ctx context.Context) (decimal.Decimal, error) {
		return g.inner.GetPrice(ctx, symbol)
	})
}

// GetHistoricalCandles implements Broker.
func (g *Guarded) GetHistoricalCandles(ctx context.Context, symbol string, interval string, lookback time.Duration) ([]types.Candle, error) {
	return guard(ctx, g, "get_historical_candles", func(ctx context.Context) ([]types.Candle, error) {
		return g.inner.GetHistoricalCandles(ctx, symbol, interval, lookback)
	})
}

// PlaceLimitOrder implements Broker.
func (g *Guarded) PlaceLimitOrder(ctx context.Context, order types.LimitOrderRequest) (string, error) {
	return guard(ctx, g, "place_limit_order", func(ctx context.Context) (string, error) {
		return g.inner.PlaceLimitOrder(ctx, order)
	})
}

// CancelOrder implements Broker.
func (g *Guarded) CancelOrder(ctx context.Context, symbol string, orderID string) error {
	_, err := guard(ctx, g, "cancel_order", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.CancelOrder(ctx, symbol, orderID)
	})

	return err
}

// ListOpenOrders implements Broker.
func (g *Guarded) ListOpenOrders(ctx context.Context, symbol string) ([]string, error) {
	return guard(ctx, g, "list_open_orders", func(ctx context.Context) ([]string, error) {
		return g.inner.ListOpenOrders(ctx, symbol)
	})
}

var _ Broker = (*Guarded)(nil)
