package indicator

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds the indicator windows.
type Config struct {
	// TrendPeriod is the EMA window in samples.
	TrendPeriod int
	// MomentumPeriod is the RSI window in deltas.
	MomentumPeriod int
}

// DefaultConfig returns the 24-sample EMA and 14-delta RSI windows.
func DefaultConfig() Config {
	return Config{
		TrendPeriod:    DefaultEMAPeriod,
		MomentumPeriod: DefaultRSIPeriod,
	}
}

// Engine keeps the time-ordered sample series and the trend and momentum
// indicators derived from it. It does no I/O and is not safe for concurrent use.
type Engine struct {
	trend    *EMA
	momentum *RSI
	series   *RingBuffer[types.PriceSample]
	latest   optional.Option[types.IndicatorSnapshot]
}

// NewEngine creates an engine for the given windows.
func NewEngine(config Config) (*Engine, error) {
	trend, err := NewEMA(config.TrendPeriod)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid trend period", err)
	}

	momentum, err := NewRSI(config.MomentumPeriod)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid momentum period", err)
	}

	// one extra slot so the retained window always spans the longest lookback
	size := max(config.TrendPeriod, config.MomentumPeriod) + 1

	return &Engine{
		trend:    trend,
		momentum: momentum,
		series:   NewRingBuffer[types.PriceSample](size),
		latest:   optional.None[types.IndicatorSnapshot](),
	}, nil
}

// Record appends sample to the series and returns the updated snapshot.
//
// A sample whose timestamp is not strictly after the last recorded one fails
// with ErrCodeOutOfOrderSample and leaves the engine untouched.
func (e *Engine) Record(sample types.PriceSample) (types.IndicatorSnapshot, error) {
	if last, ok := e.series.Last(); ok && !sample.Timestamp.After(last.Timestamp) {
		return types.IndicatorSnapshot{}, errors.Newf(errors.ErrCodeOutOfOrderSample,
			"sample at %s is not after last recorded sample at %s",
			sample.Timestamp.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
	}

	if !sample.Close.IsPositive() {
		return types.IndicatorSnapshot{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"sample close must be positive, got %s", sample.Close.String())
	}

	price := sample.Close.InexactFloat64()

	snapshot := types.IndicatorSnapshot{
		Timestamp: sample.Timestamp,
		Close:     sample.Close,
		Trend:     toDecimal(e.trend.Update(price)),
		Momentum:  toDecimal(e.momentum.Update(price)),
	}

	e.series.Add(sample)
	e.latest = optional.Some(snapshot)

	return snapshot, nil
}

// Len returns the number of retained samples.
func (e *Engine) Len() int {
	return e.series.Len()
}

// Last returns the most recently recorded sample.
func (e *Engine) Last() (types.PriceSample, bool) {
	return e.series.Last()
}

// Samples returns the retained window, oldest first.
func (e *Engine) Samples() []types.PriceSample {
	return e.series.Values()
}

// Latest returns the snapshot produced by the last successful Record.
func (e *Engine) Latest() optional.Option[types.IndicatorSnapshot] {
	return e.latest
}

func toDecimal(v optional.Option[float64]) optional.Option[decimal.Decimal] {
	if v.IsNone() {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(decimal.NewFromFloat(v.Unwrap()))
}
