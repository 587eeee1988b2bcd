package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/mocks"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type GuardedTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	inner   *mocks.MockBroker
	guarded *broker.Guarded
	ops     []string
	changes []broker.BreakerState
}

func TestGuardedSuite(t *testing.T) {
	suite.Run(t, new(GuardedTestSuite))
}

func (suite *GuardedTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.inner = mocks.NewMockBroker(suite.ctrl)
	suite.ops = nil
	suite.changes = nil

	onError := func(op string, _ error) {
		suite.ops = append(suite.ops, op)
	}
	onChange := func(_, to broker.BreakerState) {
		suite.changes = append(suite.changes, to)
	}

	suite.guarded = broker.NewGuarded(suite.inner, broker.GuardedConfig{
		Timeout:      50 * time.Millisecond,
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	}, broker.GuardedCallbacks{
		OnError:              &onError,
		OnBreakerStateChange: &onChange,
	})
}

func (suite *GuardedTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *GuardedTestSuite) TestPassesThroughResults() {
	suite.inner.EXPECT().GetPrice(gomock.Any(), "ETHUSD").Return(decimal.NewFromInt(100), nil)
	suite.inner.EXPECT().ListOpenOrders(gomock.Any(), "ETHUSD").Return([]string{"1"}, nil)
	suite.inner.EXPECT().CancelOrder(gomock.Any(), "ETHUSD", "1").Return(nil)

	price, err := suite.guarded.GetPrice(context.Background(), "ETHUSD")
	suite.NoError(err)
	suite.True(decimal.NewFromInt(100).Equal(price))

	ids, err := suite.guarded.ListOpenOrders(context.Background(), "ETHUSD")
	suite.NoError(err)
	suite.Equal([]string{"1"}, ids)

	suite.NoError(suite.guarded.CancelOrder(context.Background(), "ETHUSD", "1"))
	suite.Empty(suite.ops)
}

func (suite *GuardedTestSuite) TestAppliesTimeout() {
	suite.inner.EXPECT().GetBalance(gomock.Any(), "USD").DoAndReturn(func(ctx context.Context, _ string) (decimal.Decimal, error) {
		deadline, ok := ctx.Deadline()
		suite.True(ok)
		suite.WithinDuration(time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)

		<-ctx.Done()

		return decimal.Zero, ctx.Err()
	})

	_, err := suite.guarded.GetBalance(context.Background(), "USD")
	suite.Error(err)
	suite.True(errors.IsBrokerRequest(err))
	suite.Contains(err.Error(), "get_balance timed out")
	suite.Equal([]string{"get_balance"}, suite.ops)
}

func (suite *GuardedTestSuite) TestCallerCancellationIsNotAFailure() {
	ctx, cancel := context.WithCancel(context.Background())

	suite.inner.EXPECT().GetBalance(gomock.Any(), "USD").DoAndReturn(func(callCtx context.Context, _ string) (decimal.Decimal, error) {
		cancel()
		<-callCtx.Done()

		return decimal.Zero, errors.Wrap(errors.ErrCodeBrokerRequest, "failed to get account", callCtx.Err())
	}).Times(3)

	for i := 0; i < 3; i++ {
		_, err := suite.guarded.GetBalance(ctx, "USD")
		suite.Equal(context.Canceled, err)
		suite.False(errors.IsBrokerRequest(err))
	}

	suite.Equal(broker.BreakerClosed, suite.guarded.BreakerState())
	suite.Empty(suite.changes)
	suite.Empty(suite.ops)
}

func (suite *GuardedTestSuite) TestRequestFailuresOpenBreaker() {
	requestErr := errors.New(errors.ErrCodeBrokerRequest, "connection refused")
	suite.inner.EXPECT().GetPrice(gomock.Any(), "ETHUSD").Return(decimal.Zero, requestErr).Times(2)

	_, _ = suite.guarded.GetPrice(context.Background(), "ETHUSD")
	_, _ = suite.guarded.GetPrice(context.Background(), "ETHUSD")
	suite.Equal(broker.BreakerOpen, suite.guarded.BreakerState())
	suite.Equal([]broker.BreakerState{broker.BreakerOpen}, suite.changes)

	// the inner broker is not called while open
	_, err := suite.guarded.PlaceLimitOrder(context.Background(), types.LimitOrderRequest{})
	suite.ErrorIs(err, broker.ErrCircuitOpen)
	suite.Equal([]string{"get_price", "get_price", "place_limit_order"}, suite.ops)
}

func (suite *GuardedTestSuite) TestRejectionsDoNotOpenBreaker() {
	rejection := errors.New(errors.ErrCodeBrokerRejection, "insufficient balance")
	suite.inner.EXPECT().PlaceLimitOrder(gomock.Any(), gomock.Any()).Return("", rejection).Times(3)

	for i := 0; i < 3; i++ {
		_, err := suite.guarded.PlaceLimitOrder(context.Background(), types.LimitOrderRequest{})
		suite.True(errors.IsBrokerRejection(err))
	}

	suite.Equal(broker.BreakerClosed, suite.guarded.BreakerState())
}

func (suite *GuardedTestSuite) TestHistoricalCandles() {
	candles := []types.Candle{{Close: decimal.NewFromInt(1)}}
	suite.inner.EXPECT().GetHistoricalCandles(gomock.Any(), "ETHUSD", broker.Interval1m, time.Hour).Return(candles, nil)

	got, err := suite.guarded.GetHistoricalCandles(context.Background(), "ETHUSD", broker.Interval1m, time.Hour)
	suite.NoError(err)
	suite.Equal(candles, got)
}
