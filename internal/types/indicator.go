package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// PriceSample is one (timestamp, close) observation. Samples are recorded in
// strictly increasing timestamp order.
type PriceSample struct {
	Timestamp time.Time
	Close     decimal.Decimal
}

// Candle is a historical OHLCV bar used for seeding.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// IndicatorSnapshot is the indicator state right after a sample was recorded.
// Trend and Momentum are None until enough history exists.
type IndicatorSnapshot struct {
	Timestamp time.Time
	Close     decimal.Decimal
	// Trend is the exponential moving average of close.
	Trend optional.Option[decimal.Decimal]
	// Momentum is the relative strength index in [0, 100].
	Momentum optional.Option[decimal.Decimal]
}

// Ready reports whether both indicators are defined.
func (s IndicatorSnapshot) Ready() bool {
	return s.Trend.IsSome() && s.Momentum.IsSome()
}
