package trading

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/clock"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"go.uber.org/zap"
)

// maxSeedBackoff caps the wait between seed fetch attempts.
const maxSeedBackoff = time.Minute

// Seed fills the engine with history so indicators are defined from the first
// cycle. It fetches 1m candles over SeedLookback plus the minutes since the
// last grid slot and records one close per stride, on the grid, oldest first.
// Candles from the current minute onwards are left for the live loop.
// It returns the number of samples recorded.
func (d *Driver) Seed(ctx context.Context) (int, error) {
	if d.config.SeedLookback <= 0 {
		return 0, nil
	}

	now := d.clock.Now()
	lookback := d.config.SeedLookback + d.config.Schedule.Offset(now)
	symbol := d.config.Symbol()

	candles, err := d.fetchSeedCandles(ctx, symbol, lookback)
	if err != nil {
		return 0, err
	}

	cutoff := d.config.Schedule.Slot(now)
	stride := int64(d.config.SeedStride)
	recorded := 0

	for _, candle := range candles {
		openTime := candle.OpenTime.Truncate(time.Minute)

		if !openTime.Before(cutoff) {
			continue
		}

		if (openTime.Unix()/60)%stride != 0 {
			continue
		}

		snapshot, err := d.engine.Record(types.PriceSample{Timestamp: openTime, Close: candle.Close})
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeOutOfOrderSample) {
				d.log.Warn("Skipping out-of-order seed candle", zap.Time("open_time", openTime), zap.Error(err))

				continue
			}

			return recorded, err
		}

		d.metrics.ObserveSnapshot(snapshot)
		recorded++
	}

	d.log.Info("Seeded indicators",
		zap.String("symbol", symbol),
		zap.Int("candles", len(candles)),
		zap.Int("samples", recorded),
		zap.Duration("lookback", lookback),
	)

	d.board.update(func(s *types.BotStatus) {
		s.Indicators = d.engine.Latest()
	})

	return recorded, nil
}

// fetchSeedCandles retries request failures with capped exponential backoff.
// Rejections are not retried.
func (d *Driver) fetchSeedCandles(ctx context.Context, symbol string, lookback time.Duration) ([]types.Candle, error) {
	var candles []types.Candle

	operation := func() error {
		result, err := d.broker.GetHistoricalCandles(ctx, symbol, broker.Interval1m, lookback)
		if err != nil {
			if !errors.IsBrokerRequest(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		candles = result

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.config.SeedBackoff
	policy.MaxInterval = maxSeedBackoff
	policy.MaxElapsedTime = 0
	policy.Clock = d.clock

	onRetry := func(err error, wait time.Duration) {
		d.log.Warn("Failed to fetch seed candles, retrying", zap.Duration("wait", wait), zap.Error(err))
	}

	err := backoff.RetryNotifyWithTimer(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, d.config.SeedRetries), ctx),
		onRetry,
		&clockTimer{clock: d.clock, c: nil},
	)
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), "failed to fetch seed candles", err)
	}

	return candles, nil
}

// clockTimer drives backoff waits from the injected clock.
type clockTimer struct {
	clock clock.Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(duration time.Duration) {
	t.c = t.clock.After(duration)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}

var _ backoff.Timer = (*clockTimer)(nil)
