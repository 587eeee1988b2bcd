package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// DefaultEMAPeriod is the trend window in samples.
const DefaultEMAPeriod = 24

// EMA implements an incremental Exponential Moving Average.
//
// The first value is the simple average of the first period closes; after that
// EMA = close * alpha + EMA_prev * (1 - alpha) with alpha = 2 / (period + 1).
type EMA struct {
	period int
	alpha  float64
	count  int
	sum    float64
	value  float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema period must be a positive integer, got %d", period)
	}

	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
		count:  0,
		sum:    0,
		value:  0,
	}, nil
}

// Name returns the name of the indicator.
func (e *EMA) Name() string {
	return "ema"
}

// Period returns the configured period.
func (e *EMA) Period() int {
	return e.period
}

// Update folds close into the average.
func (e *EMA) Update(price float64) optional.Option[float64] {
	e.count++

	switch {
	case e.count < e.period:
		e.sum += price
	case e.count == e.period:
		e.sum += price
		e.value = e.sum / float64(e.period)
	default:
		e.value = price*e.alpha + e.value*(1-e.alpha)
	}

	return e.Value()
}

// Value returns the current average, or None before period closes were seen.
func (e *EMA) Value() optional.Option[float64] {
	if e.count < e.period {
		return optional.None[float64]()
	}

	return optional.Some(e.value)
}

var _ Indicator = (*EMA)(nil)
