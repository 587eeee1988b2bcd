package signal

import (
	"math/rand"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type EvaluatorTestSuite struct {
	suite.Suite
	evaluator *Evaluator
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorTestSuite))
}

func (suite *EvaluatorTestSuite) SetupTest() {
	evaluator, err := NewEvaluator(DefaultConfig())
	suite.Require().NoError(err)
	suite.evaluator = evaluator
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func snapshot(price, trend, momentum string) types.IndicatorSnapshot {
	return types.IndicatorSnapshot{
		Timestamp: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		Close:     d(price),
		Trend:     optional.Some(d(trend)),
		Momentum:  optional.Some(d(momentum)),
	}
}

func flat() types.Position {
	return types.Position{HeldQuantity: decimal.Zero, EntryPrice: optional.None[decimal.Decimal]()}
}

func held(qty, entry string) types.Position {
	return types.Position{HeldQuantity: d(qty), EntryPrice: optional.Some(d(entry))}
}

func (suite *EvaluatorTestSuite) TestEnterWhenBelowTrendAndOversold() {
	// 95 < 100*0.9925 = 99.25 and 35 <= 39.5
	suite.Equal(types.DecisionEnter, suite.evaluator.Evaluate(snapshot("95", "100", "35"), flat()))
}

func (suite *EvaluatorTestSuite) TestNoEnterWhenNotFarEnoughBelowTrend() {
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("99.5", "100", "35"), flat()))
	// boundary is strict
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("99.25", "100", "35"), flat()))
}

func (suite *EvaluatorTestSuite) TestNoEnterWhenNotOversold() {
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("95", "100", "39.6"), flat()))
	// boundary is inclusive
	suite.Equal(types.DecisionEnter, suite.evaluator.Evaluate(snapshot("95", "100", "39.5"), flat()))
}

func (suite *EvaluatorTestSuite) TestNoEnterWhileHolding() {
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("95", "100", "20"), held("1", "96")))
}

func (suite *EvaluatorTestSuite) TestExitAboveTakeProfit() {
	// 101.5 > 100*1.01 = 101
	suite.Equal(types.DecisionExit, suite.evaluator.Evaluate(snapshot("101.5", "100", "50"), held("1", "100")))
	// boundary is strict
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("101", "100", "50"), held("1", "100")))
}

func (suite *EvaluatorTestSuite) TestStopLossInertByDefault() {
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("50", "100", "10"), held("1", "100")))
}

func (suite *EvaluatorTestSuite) TestStopLossWhenEnabled() {
	config := DefaultConfig()
	config.StopLossEnabled = true

	evaluator, err := NewEvaluator(config)
	suite.Require().NoError(err)

	// 94 < 100*0.95
	suite.Equal(types.DecisionExit, evaluator.Evaluate(snapshot("94", "100", "10"), held("1", "100")))
	suite.Equal(types.DecisionNone, evaluator.Evaluate(snapshot("96", "100", "10"), held("1", "100")))
}

func (suite *EvaluatorTestSuite) TestHeldWithoutEntryPrice() {
	position := types.Position{HeldQuantity: d("1"), EntryPrice: optional.None[decimal.Decimal]()}
	suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(snapshot("500", "100", "50"), position))
}

func (suite *EvaluatorTestSuite) TestUndefinedIndicatorsNeverSignal() {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		s := types.IndicatorSnapshot{
			Timestamp: time.Unix(int64(i), 0),
			Close:     decimal.NewFromFloat(rng.Float64() * 200),
			Trend:     optional.Some(decimal.NewFromFloat(rng.Float64() * 200)),
			Momentum:  optional.Some(decimal.NewFromFloat(rng.Float64() * 100)),
		}

		switch rng.Intn(3) {
		case 0:
			s.Trend = optional.None[decimal.Decimal]()
		case 1:
			s.Momentum = optional.None[decimal.Decimal]()
		default:
			s.Trend = optional.None[decimal.Decimal]()
			s.Momentum = optional.None[decimal.Decimal]()
		}

		position := flat()
		if rng.Intn(2) == 0 {
			position = types.Position{
				HeldQuantity: decimal.NewFromFloat(rng.Float64() * 10).Add(d("0.000001")),
				EntryPrice:   optional.Some(decimal.NewFromFloat(rng.Float64() * 200)),
			}
		}

		suite.Equal(types.DecisionNone, suite.evaluator.Evaluate(s, position))
	}
}

func (suite *EvaluatorTestSuite) TestInvalidConfig() {
	config := DefaultConfig()
	config.MALowerLimit = d("1.5")
	_, err := NewEvaluator(config)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidThreshold))

	config = DefaultConfig()
	config.RSILowerLimit = d("101")
	_, err = NewEvaluator(config)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidThreshold))

	config = DefaultConfig()
	config.TakeProfitLimit = d("-0.01")
	_, err = NewEvaluator(config)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidThreshold))
}

func (suite *EvaluatorTestSuite) TestConfigAccessor() {
	suite.True(d("39.5").Equal(suite.evaluator.Config().RSILowerLimit))
	suite.False(suite.evaluator.Config().StopLossEnabled)
}
