package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// DefaultRSIPeriod is the momentum window in close-to-close deltas.
const DefaultRSIPeriod = 14

// RSI implements the Relative Strength Index with Wilder's smoothing.
//
// The first averages are the plain means of the first period gains and losses.
// Each later delta updates them as avg = (avg*(period-1) + x) / period.
type RSI struct {
	period    int
	prevClose float64
	hasPrev   bool
	deltas    int
	avgGain   float64
	avgLoss   float64
}

// NewRSI creates a new RSI indicator with the given period.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rsi period must be a positive integer, got %d", period)
	}

	return &RSI{
		period:    period,
		prevClose: 0,
		hasPrev:   false,
		deltas:    0,
		avgGain:   0,
		avgLoss:   0,
	}, nil
}

// Name returns the name of the indicator.
func (r *RSI) Name() string {
	return "rsi"
}

// Period returns the configured period.
func (r *RSI) Period() int {
	return r.period
}

// Update folds the delta from the previous close into the averages.
func (r *RSI) Update(price float64) optional.Option[float64] {
	if !r.hasPrev {
		r.prevClose = price
		r.hasPrev = true

		return r.Value()
	}

	change := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.deltas++
	p := float64(r.period)

	if r.deltas <= r.period {
		r.avgGain += gain
		r.avgLoss += loss

		if r.deltas == r.period {
			r.avgGain /= p
			r.avgLoss /= p
		}
	} else {
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	return r.Value()
}

// Value returns the current RSI, or None before period deltas were seen.
func (r *RSI) Value() optional.Option[float64] {
	if r.deltas < r.period {
		return optional.None[float64]()
	}

	if r.avgLoss == 0 {
		return optional.Some(100.0)
	}

	rs := r.avgGain / r.avgLoss

	return optional.Some(100 - (100 / (1 + rs)))
}

var _ Indicator = (*RSI)(nil)
