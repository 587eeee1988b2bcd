package indicator

import (
	"github.com/moznion/go-optional"
)

// Indicator is a streaming indicator fed one close at a time, oldest first.
// Value is None until the indicator has seen enough history.
type Indicator interface {
	// Name returns the short name of the indicator.
	Name() string
	// Period returns the configured lookback.
	Period() int
	// Update folds the next close into the indicator and returns the new value.
	Update(price float64) optional.Option[float64]
	// Value returns the current value without changing state.
	Value() optional.Option[float64]
}
