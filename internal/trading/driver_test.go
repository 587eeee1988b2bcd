package trading_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/clock"
	"github.com/rxtech-lab/indicator-bot/internal/indicator"
	"github.com/rxtech-lab/indicator-bot/internal/journal"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/internal/metrics"
	"github.com/rxtech-lab/indicator-bot/internal/signal"
	"github.com/rxtech-lab/indicator-bot/internal/trading"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/mocks"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type DriverTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	broker   *mocks.MockBroker
	notifier *mocks.MockNotifier
	clock    *clock.Manual
	engine   *indicator.Engine
	journal  *journal.Journal
	metrics  *metrics.Metrics
	config   trading.Config
	driver   *trading.Driver
	start    time.Time

	mu       sync.Mutex
	messages []string
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverTestSuite))
}

func (suite *DriverTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.broker = mocks.NewMockBroker(suite.ctrl)
	suite.notifier = mocks.NewMockNotifier(suite.ctrl)
	suite.start = time.Date(2026, 1, 5, 12, 3, 0, 0, time.UTC)
	suite.clock = clock.NewManual(suite.start)
	suite.metrics = metrics.New()
	suite.messages = nil

	suite.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, message string) error {
			suite.mu.Lock()
			defer suite.mu.Unlock()

			suite.messages = append(suite.messages, message)

			return nil
		}).AnyTimes()

	engine, err := indicator.NewEngine(indicator.Config{TrendPeriod: 2, MomentumPeriod: 2})
	suite.Require().NoError(err)
	suite.engine = engine

	j, err := journal.Open(journal.InMemory)
	suite.Require().NoError(err)
	suite.journal = j

	suite.config = trading.DefaultConfig("ETH", "USD")
	suite.config.SeedRetries = 3
	suite.config.SeedBackoff = 0
	suite.buildDriver()
}

func (suite *DriverTestSuite) TearDownTest() {
	suite.NoError(suite.journal.Close())
}

func (suite *DriverTestSuite) buildDriver() {
	evaluator, err := signal.NewEvaluator(signal.DefaultConfig())
	suite.Require().NoError(err)

	driver, err := trading.NewDriver(suite.config, trading.Dependencies{
		Broker:    suite.broker,
		Engine:    suite.engine,
		Evaluator: evaluator,
		Notifier:  suite.notifier,
		Journal:   suite.journal,
		Metrics:   suite.metrics,
		Board:     nil,
		Clock:     suite.clock,
		Logger:    logger.NewNop(),
	})
	suite.Require().NoError(err)
	suite.driver = driver
}

func (suite *DriverTestSuite) sent() []string {
	suite.mu.Lock()
	defer suite.mu.Unlock()

	return append([]string(nil), suite.messages...)
}

func (suite *DriverTestSuite) hasMessage(prefix string) bool {
	for _, m := range suite.sent() {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}

	return false
}

// seedFalling records 110, 105, 100 so the next cycle at 95 is an entry
// with trend and momentum periods of 2.
func (suite *DriverTestSuite) seedFalling() {
	for i, price := range []int64{110, 105, 100} {
		_, err := suite.engine.Record(types.PriceSample{
			Timestamp: time.Date(2026, 1, 5, 11, 40+10*i, 0, 0, time.UTC),
			Close:     decimal.NewFromInt(price),
		})
		suite.Require().NoError(err)
	}
}

func (suite *DriverTestSuite) expectRefresh(cash, coin string, open []string, price string) {
	gomock.InOrder(
		suite.broker.EXPECT().GetBalance(gomock.Any(), "USD").Return(decimal.RequireFromString(cash), nil),
		suite.broker.EXPECT().GetBalance(gomock.Any(), "ETH").Return(decimal.RequireFromString(coin), nil),
		suite.broker.EXPECT().ListOpenOrders(gomock.Any(), "ETHUSD").Return(open, nil),
		suite.broker.EXPECT().GetPrice(gomock.Any(), "ETHUSD").Return(decimal.RequireFromString(price), nil),
	)
}

func (suite *DriverTestSuite) at(hour, minute int) {
	suite.clock.Set(time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC))
}

// enter runs the 12:10 cycle that places a buy of 1.052631 ETH at 95.
func (suite *DriverTestSuite) enter() {
	suite.seedFalling()
	suite.at(12, 10)
	suite.expectRefresh("100", "0", []string{}, "95")
	suite.broker.EXPECT().PlaceLimitOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, order types.LimitOrderRequest) (string, error) {
			suite.Equal(types.OrderSideBuy, order.Side)
			suite.Equal("ETHUSD", order.Symbol)
			suite.Equal("1.052631", order.Quantity.String())
			suite.Equal("95", order.Price.String())
			suite.Equal(types.TimeInForceGTC, order.TimeInForce)
			suite.NotEmpty(order.ClientOrderID)

			return "order-1", nil
		})

	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Require().Equal(types.StateBuyPending, suite.driver.Manager().State())
}

func (suite *DriverTestSuite) TestNewDriverValidation() {
	config := trading.DefaultConfig("", "USD")
	_, err := trading.NewDriver(config, trading.Dependencies{})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	config = trading.DefaultConfig("ETH", "USD")
	config.SeedStride = 0
	_, err = trading.NewDriver(config, trading.Dependencies{})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	_, err = trading.NewDriver(trading.DefaultConfig("ETH", "USD"), trading.Dependencies{})
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))
}

func (suite *DriverTestSuite) TestSeedKeepsOnGridCandles() {
	first := time.Date(2026, 1, 5, 4, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, 0)

	for i := 0; first.Add(time.Duration(i) * time.Minute).Before(suite.start.Add(time.Minute)); i++ {
		openTime := first.Add(time.Duration(i) * time.Minute)
		candles = append(candles, types.Candle{
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Minute - time.Millisecond),
			Close:     decimal.NewFromInt(1000 + int64(i)),
		})

		if openTime.Equal(first.Add(time.Hour)) {
			// a repeated bar must be skipped, not recorded
			candles = append(candles, candles[len(candles)-1])
		}
	}

	suite.broker.EXPECT().
		GetHistoricalCandles(gomock.Any(), "ETHUSD", broker.Interval1m, 8*time.Hour+3*time.Minute).
		Return(candles, nil)

	recorded, err := suite.driver.Seed(context.Background())
	suite.Require().NoError(err)

	// 04:00 through 12:00 every 10 minutes; 12:03 and the minutes after 12:00 are dropped
	suite.Equal(49, recorded)

	last, ok := suite.engine.Last()
	suite.Require().True(ok)
	suite.Equal(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), last.Timestamp)

	for _, sample := range suite.engine.Samples() {
		suite.Equal(0, sample.Timestamp.Minute()%10)
	}

	status := suite.driver.Board().Status()
	suite.True(status.Indicators.IsSome())
}

func (suite *DriverTestSuite) TestSeedExcludesCurrentSlot() {
	suite.at(12, 10)

	candles := []types.Candle{
		{OpenTime: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(100)},
		{OpenTime: time.Date(2026, 1, 5, 12, 10, 0, 0, time.UTC), Close: decimal.NewFromInt(101)},
	}
	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), "ETHUSD", broker.Interval1m, 8*time.Hour).Return(candles, nil)

	recorded, err := suite.driver.Seed(context.Background())
	suite.Require().NoError(err)
	suite.Equal(1, recorded)
}

func (suite *DriverTestSuite) TestLiveSamplesShareSeedGridInOffsetZone() {
	kathmandu := time.FixedZone("NPT", 5*3600+45*60)
	// 12:15 local, 06:30 UTC
	suite.clock.Set(time.Date(2026, 1, 5, 12, 15, 0, 0, kathmandu))
	suite.Require().True(suite.config.Schedule.Due(suite.clock.Now()))

	candles := []types.Candle{
		{OpenTime: time.Date(2026, 1, 5, 6, 20, 0, 0, time.UTC), Close: decimal.NewFromInt(100)},
		{OpenTime: time.Date(2026, 1, 5, 6, 25, 0, 0, time.UTC), Close: decimal.NewFromInt(101)},
	}
	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), "ETHUSD", broker.Interval1m, gomock.Any()).Return(candles, nil)

	recorded, err := suite.driver.Seed(context.Background())
	suite.Require().NoError(err)
	suite.Equal(1, recorded)

	suite.expectRefresh("5", "0", []string{}, "102")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))

	samples := suite.engine.Samples()
	suite.Require().Len(samples, 2)

	for _, sample := range samples {
		suite.Equal(0, sample.Timestamp.UTC().Minute()%10)
	}
}

func (suite *DriverTestSuite) TestSeedRetriesRequestFailures() {
	gomock.InOrder(
		suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New(errors.ErrCodeBrokerRequest, "timeout")),
		suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]types.Candle{{OpenTime: time.Date(2026, 1, 5, 11, 50, 0, 0, time.UTC), Close: decimal.NewFromInt(100)}}, nil),
	)

	recorded, err := suite.driver.Seed(context.Background())
	suite.Require().NoError(err)
	suite.Equal(1, recorded)
}

func (suite *DriverTestSuite) TestSeedGivesUpAfterRetries() {
	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeBrokerRequest, "timeout")).
		Times(4)

	_, err := suite.driver.Seed(context.Background())
	suite.Error(err)
	suite.True(errors.IsBrokerRequest(err))
}

func (suite *DriverTestSuite) TestSeedDoesNotRetryRejection() {
	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeBrokerRejection, "invalid symbol")).
		Times(1)

	_, err := suite.driver.Seed(context.Background())
	suite.Error(err)
	suite.True(errors.IsBrokerRejection(err))
}

func (suite *DriverTestSuite) TestRunCycleEnters() {
	suite.enter()

	suite.Contains(suite.sent(), "Buying 1.052631 ETH for $95 USD")

	decisions, err := suite.journal.Decisions(0)
	suite.Require().NoError(err)
	suite.Require().Len(decisions, 1)
	suite.Equal(types.DecisionEnter, decisions[0].Decision)
	suite.Equal(types.StateBuyPending, decisions[0].State)
	suite.True(decisions[0].Acted)
	suite.Equal(time.Date(2026, 1, 5, 12, 10, 0, 0, time.UTC), decisions[0].Timestamp.UTC())

	orders, err := suite.journal.Orders()
	suite.Require().NoError(err)
	suite.Require().Len(orders, 1)
	suite.Equal(types.OrderEventPlaced, orders[0].Event)
	suite.Equal("order-1", orders[0].Order.OrderID)

	status := suite.driver.Board().Status()
	suite.Equal(uint64(1), status.Cycles)
	suite.Equal(types.StateBuyPending, status.Trading.State)
	suite.Equal(types.DecisionEnter, status.LastDecision)
	suite.True(status.Balances.Cash.Equal(decimal.NewFromInt(100)))
	suite.Empty(status.LastError)

	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.CyclesTotal))
	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.DecisionsTotal.WithLabelValues("ENTER")))
	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.OrdersTotal.WithLabelValues("BUY", "PLACED")))
	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.LifecycleState.WithLabelValues("BUY_PENDING")))
}

func (suite *DriverTestSuite) TestRunCycleCancelsUnfilledBuyOnce() {
	suite.enter()

	suite.at(12, 20)
	suite.expectRefresh("0", "0", []string{"order-1"}, "99")
	suite.broker.EXPECT().CancelOrder(gomock.Any(), "ETHUSD", "order-1").Return(nil).Times(1)

	suite.Require().NoError(suite.driver.RunCycle(context.Background()))

	suite.Equal(types.StateFlat, suite.driver.Manager().State())
	suite.True(suite.driver.Manager().Position().HeldQuantity.IsZero())
	suite.Contains(suite.sent(), trading.MessageCancel)
	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.OrdersTotal.WithLabelValues("BUY", "CANCELLED")))
}

func (suite *DriverTestSuite) TestRunCycleFullLifecycle() {
	suite.enter()

	// buy filled
	suite.at(12, 20)
	suite.expectRefresh("0", "1.052631", []string{}, "95.5")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateHeld, suite.driver.Manager().State())
	suite.True(suite.driver.Manager().Position().EntryPrice.Unwrap().Equal(decimal.NewFromInt(95)))

	// take profit: 96 > 95 * 1.01
	suite.at(12, 30)
	suite.expectRefresh("0", "1.052631", []string{}, "96")
	suite.broker.EXPECT().PlaceLimitOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, order types.LimitOrderRequest) (string, error) {
			suite.Equal(types.OrderSideSell, order.Side)
			suite.Equal("1.052631", order.Quantity.String())
			suite.Equal("96", order.Price.String())

			return "order-2", nil
		})
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateSellPending, suite.driver.Manager().State())
	suite.Contains(suite.sent(), "Selling 1.052631 ETH for $96 USD")

	// sell still resting: never cancelled
	suite.at(12, 40)
	suite.expectRefresh("0", "0", []string{"order-2"}, "96")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateSellPending, suite.driver.Manager().State())

	// sell filled
	suite.at(12, 50)
	suite.expectRefresh("101.05", "0", []string{}, "96")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateFlat, suite.driver.Manager().State())

	orders, err := suite.journal.Orders()
	suite.Require().NoError(err)

	events := make([]string, 0, len(orders))
	for _, o := range orders {
		events = append(events, string(o.Order.Side)+":"+string(o.Event))
	}

	suite.Equal([]string{"BUY:PLACED", "BUY:FILLED", "SELL:PLACED", "SELL:FILLED"}, events)
	suite.Equal(uint64(5), suite.driver.Board().Status().Cycles)
}

func (suite *DriverTestSuite) TestRunCycleExitSizedFromCoinBalance() {
	suite.enter()

	suite.at(12, 20)
	suite.expectRefresh("0", "1.051578", []string{}, "95.5")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Require().Equal(types.StateHeld, suite.driver.Manager().State())

	// fee taken in ETH: only the free balance can be sold
	suite.at(12, 30)
	suite.expectRefresh("0", "1.0515789", []string{}, "96")
	suite.broker.EXPECT().PlaceLimitOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, order types.LimitOrderRequest) (string, error) {
			suite.Equal(types.OrderSideSell, order.Side)
			suite.Equal("1.051578", order.Quantity.String())

			return "order-2", nil
		})
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateSellPending, suite.driver.Manager().State())
	suite.Contains(suite.sent(), "Selling 1.051578 ETH for $96 USD")

	suite.at(12, 40)
	suite.expectRefresh("100.95", "0", []string{}, "96")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateFlat, suite.driver.Manager().State())
}

func (suite *DriverTestSuite) TestRunCycleExitSkippedWithoutCoin() {
	suite.enter()

	suite.at(12, 20)
	suite.expectRefresh("0", "1.052631", []string{}, "95.5")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))

	suite.at(12, 30)
	suite.expectRefresh("0", "0.0000009", []string{}, "96")
	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateHeld, suite.driver.Manager().State())

	decisions, err := suite.journal.Decisions(0)
	suite.Require().NoError(err)
	suite.Require().Len(decisions, 3)
	suite.Equal(types.DecisionExit, decisions[0].Decision)
	suite.False(decisions[0].Acted)
}

func (suite *DriverTestSuite) TestRunCycleOutOfOrderSampleIsDefect() {
	suite.seedFalling()
	_, err := suite.engine.Record(types.PriceSample{
		Timestamp: time.Date(2026, 1, 5, 12, 10, 0, 0, time.UTC),
		Close:     decimal.NewFromInt(100),
	})
	suite.Require().NoError(err)

	suite.at(12, 10)
	suite.expectRefresh("100", "0", []string{}, "95")

	err = suite.driver.RunCycle(context.Background())
	suite.Error(err)
	suite.True(errors.IsDefect(err))
	suite.True(suite.hasMessage("Cycle aborted"))
	suite.Equal(types.StateFlat, suite.driver.Manager().State())
	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.CycleFailuresTotal))
	suite.NotEmpty(suite.driver.Board().Status().LastError)
}

func (suite *DriverTestSuite) TestRunCycleReconciliationConflict() {
	suite.enter()

	suite.at(12, 20)
	suite.expectRefresh("0", "0", []string{"order-1"}, "99")
	suite.broker.EXPECT().CancelOrder(gomock.Any(), "ETHUSD", "order-1").
		Return(errors.Wrap(errors.ErrCodeBrokerRejection, "unknown order", broker.ErrUnknownOrder))

	err := suite.driver.RunCycle(context.Background())
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeReconciliationConflict))
	suite.True(errors.IsDefect(err))
	suite.Equal(types.StateBuyPending, suite.driver.Manager().State())
	suite.True(suite.hasMessage("Cycle aborted"))
	suite.True(suite.hasMessage("Failed to cancel BUY order"))
}

func (suite *DriverTestSuite) TestRunCycleRefreshFailureAborts() {
	suite.at(12, 10)
	suite.broker.EXPECT().GetBalance(gomock.Any(), "USD").Return(decimal.Zero, errors.New(errors.ErrCodeBrokerRequest, "timeout"))

	err := suite.driver.RunCycle(context.Background())
	suite.Error(err)
	suite.True(errors.IsBrokerRequest(err))
	suite.False(errors.IsDefect(err))
	suite.Equal(0, suite.engine.Len())
	suite.Empty(suite.sent())
	suite.Contains(suite.driver.Board().Status().LastError, "failed to refresh USD balance")
}

func (suite *DriverTestSuite) TestRunCycleEntryFailureIsNotified() {
	suite.seedFalling()
	suite.at(12, 10)
	suite.expectRefresh("100", "0", []string{}, "95")
	suite.broker.EXPECT().PlaceLimitOrder(gomock.Any(), gomock.Any()).
		Return("", errors.New(errors.ErrCodeBrokerRejection, "insufficient balance"))

	err := suite.driver.RunCycle(context.Background())
	suite.Error(err)
	suite.True(errors.IsBrokerRejection(err))
	suite.Equal(types.StateFlat, suite.driver.Manager().State())
	suite.True(suite.hasMessage("Failed to place BUY order"))

	decisions, err := suite.journal.Decisions(0)
	suite.Require().NoError(err)
	suite.Require().Len(decisions, 1)
	suite.False(decisions[0].Acted)
	suite.Contains(decisions[0].Note, "insufficient balance")
}

func (suite *DriverTestSuite) TestRunCycleNotEnoughCash() {
	suite.seedFalling()
	suite.at(12, 10)
	suite.expectRefresh("9.99", "0", []string{}, "95")

	suite.Require().NoError(suite.driver.RunCycle(context.Background()))
	suite.Equal(types.StateFlat, suite.driver.Manager().State())

	decisions, err := suite.journal.Decisions(0)
	suite.Require().NoError(err)
	suite.Require().Len(decisions, 1)
	suite.Equal(types.DecisionEnter, decisions[0].Decision)
	suite.False(decisions[0].Acted)
}

// runLoop starts Run and returns a stop function that cancels it and waits.
func (suite *DriverTestSuite) runLoop() func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- suite.driver.Run(ctx)
	}()

	return func() {
		cancel()
		suite.NoError(<-done)
	}
}

func (suite *DriverTestSuite) waitForSleep() {
	suite.Eventually(func() bool {
		return suite.clock.Waiters() == 1
	}, time.Second, time.Millisecond)
}

func (suite *DriverTestSuite) TestRunCadenceAndHeartbeat() {
	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), "ETHUSD", broker.Interval1m, 8*time.Hour+3*time.Minute).
		Return([]types.Candle{}, nil)

	stop := suite.runLoop()
	defer stop()

	// 12:03 is off the grid: idle tick
	suite.waitForSleep()
	suite.Equal([]string{trading.MessageStarting}, suite.sent())
	suite.Equal(suite.start, suite.driver.Board().Status().LastTickAt)
	suite.Equal(uint64(0), suite.driver.Board().Status().Cycles)

	// 12:10 is on the grid: one active cycle
	suite.expectRefresh("5", "0", []string{}, "100")
	suite.at(12, 10)
	suite.Eventually(func() bool {
		return suite.driver.Board().Status().Cycles == 1 && suite.clock.Waiters() == 1
	}, time.Second, time.Millisecond)

	// 12:11 is off the grid again
	suite.at(12, 11)
	suite.Eventually(func() bool {
		return suite.driver.Board().Status().LastTickAt.Minute() == 11 && suite.clock.Waiters() == 1
	}, time.Second, time.Millisecond)
	suite.Equal(uint64(1), suite.driver.Board().Status().Cycles)

	// just past 12h since start: one heartbeat, and 00:04 is off the grid
	suite.clock.Set(suite.start.Add(12*time.Hour + time.Minute))
	suite.Eventually(func() bool {
		return suite.hasMessage(trading.MessageHeartbeat)
	}, time.Second, time.Millisecond)
	suite.waitForSleep()
	suite.Equal(uint64(1), suite.driver.Board().Status().Cycles)
}

func (suite *DriverTestSuite) TestRunContinuesAfterSeedFailure() {
	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeBrokerRejection, "invalid symbol"))

	stop := suite.runLoop()
	defer stop()

	suite.waitForSleep()
	suite.True(suite.hasMessage("Seeding failed"))
}

func (suite *DriverTestSuite) TestRunAdoptsExistingBalance() {
	suite.config.AdoptExistingBalance = true
	suite.buildDriver()

	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]types.Candle{}, nil)
	suite.broker.EXPECT().GetBalance(gomock.Any(), "ETH").Return(decimal.RequireFromString("0.5"), nil)
	suite.broker.EXPECT().GetPrice(gomock.Any(), "ETHUSD").Return(decimal.NewFromInt(2000), nil)

	stop := suite.runLoop()
	defer stop()

	suite.waitForSleep()

	status := suite.driver.Board().Status()
	suite.Equal(types.StateHeld, status.Trading.State)
	suite.True(status.Trading.Position.HeldQuantity.Equal(decimal.RequireFromString("0.5")))
	suite.Contains(suite.sent(), "Adopted existing position of 0.5 ETH at $2000 USD")
}

func (suite *DriverTestSuite) TestRunIgnoresDustBalance() {
	suite.config.AdoptExistingBalance = true
	suite.buildDriver()

	suite.broker.EXPECT().GetHistoricalCandles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]types.Candle{}, nil)
	suite.broker.EXPECT().GetBalance(gomock.Any(), "ETH").Return(decimal.RequireFromString("0.00001"), nil)

	stop := suite.runLoop()
	defer stop()

	suite.waitForSleep()
	suite.Equal(types.StateFlat, suite.driver.Board().Status().Trading.State)
}
