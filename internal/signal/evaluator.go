// Package signal turns an indicator snapshot and the current position into a
// trading decision. It has no side effects.
package signal

import (
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds the decision thresholds. Limits are fractions (0.01 = 1%).
type Config struct {
	// MALowerLimit is how far close must sit below the trend to enter.
	MALowerLimit decimal.Decimal
	// RSILowerLimit is the oversold momentum threshold for entries.
	RSILowerLimit decimal.Decimal
	// RSIUpperLimit is carried for configuration parity and not consulted.
	RSIUpperLimit decimal.Decimal
	// TakeProfitLimit is the gain over entry price that triggers an exit.
	TakeProfitLimit decimal.Decimal
	// StopLoss is the loss under entry price that triggers an exit when
	// StopLossEnabled is set.
	StopLoss        decimal.Decimal
	StopLossEnabled bool
}

// DefaultConfig returns the reference thresholds. Stop-loss stays inert.
func DefaultConfig() Config {
	return Config{
		MALowerLimit:    decimal.RequireFromString("0.0075"),
		RSILowerLimit:   decimal.RequireFromString("39.5"),
		RSIUpperLimit:   decimal.NewFromInt(70),
		TakeProfitLimit: decimal.RequireFromString("0.01"),
		StopLoss:        decimal.RequireFromString("0.05"),
		StopLossEnabled: false,
	}
}

// Validate checks the thresholds are usable.
func (c Config) Validate() error {
	if c.MALowerLimit.IsNegative() || c.MALowerLimit.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "ma lower limit must be in [0, 1), got %s", c.MALowerLimit)
	}

	if c.RSILowerLimit.IsNegative() || c.RSILowerLimit.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "rsi lower limit must be in [0, 100], got %s", c.RSILowerLimit)
	}

	if c.TakeProfitLimit.IsNegative() {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "take profit limit must not be negative, got %s", c.TakeProfitLimit)
	}

	if c.StopLoss.IsNegative() || c.StopLoss.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "stop loss must be in [0, 1), got %s", c.StopLoss)
	}

	return nil
}

// Evaluator decides ENTER, EXIT or NONE for each snapshot.
type Evaluator struct {
	config Config
	// precomputed multipliers
	entryFactor      decimal.Decimal
	takeProfitFactor decimal.Decimal
	stopLossFactor   decimal.Decimal
}

// NewEvaluator creates an evaluator after validating config.
func NewEvaluator(config Config) (*Evaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)

	return &Evaluator{
		config:           config,
		entryFactor:      one.Sub(config.MALowerLimit),
		takeProfitFactor: one.Add(config.TakeProfitLimit),
		stopLossFactor:   one.Sub(config.StopLoss),
	}, nil
}

// Config returns the evaluator's thresholds.
func (e *Evaluator) Config() Config {
	return e.config
}

// Evaluate returns the decision for snapshot given position.
// It never signals while either indicator is undefined.
func (e *Evaluator) Evaluate(snapshot types.IndicatorSnapshot, position types.Position) types.Decision {
	if !snapshot.Ready() {
		return types.DecisionNone
	}

	trend := snapshot.Trend.Unwrap()
	momentum := snapshot.Momentum.Unwrap()

	if position.IsFlat() {
		belowTrend := snapshot.Close.LessThan(trend.Mul(e.entryFactor))
		oversold := momentum.LessThanOrEqual(e.config.RSILowerLimit)

		if belowTrend && oversold {
			return types.DecisionEnter
		}

		return types.DecisionNone
	}

	entry, err := position.EntryPrice.Take()
	if err != nil {
		// holding without a known entry price: nothing to measure profit against
		return types.DecisionNone
	}

	if snapshot.Close.GreaterThan(entry.Mul(e.takeProfitFactor)) {
		return types.DecisionExit
	}

	if e.config.StopLossEnabled && snapshot.Close.LessThan(entry.Mul(e.stopLossFactor)) {
		return types.DecisionExit
	}

	return types.DecisionNone
}
