package indicator

import (
	"testing"

	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type RSIUnitTestSuite struct {
	suite.Suite
}

func TestRSIUnitSuite(t *testing.T) {
	suite.Run(t, new(RSIUnitTestSuite))
}

func (suite *RSIUnitTestSuite) TestNewRSI() {
	rsi, err := NewRSI(14)
	suite.Require().NoError(err)
	suite.Equal(14, rsi.Period())
	suite.Equal("rsi", rsi.Name())
	suite.True(rsi.Value().IsNone())
}

func (suite *RSIUnitTestSuite) TestNewRSIInvalidPeriod() {
	rsi, err := NewRSI(0)
	suite.Error(err)
	suite.Nil(rsi)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPeriod))
}

func (suite *RSIUnitTestSuite) TestUndefinedUntilPeriodDeltas() {
	rsi, err := NewRSI(3)
	suite.Require().NoError(err)

	// first close yields no delta
	suite.True(rsi.Update(10).IsNone())
	suite.True(rsi.Update(11).IsNone())
	suite.True(rsi.Update(12).IsNone())
	suite.True(rsi.Update(11).IsSome())
}

func (suite *RSIUnitTestSuite) TestAllGainsIsHundred() {
	rsi, err := NewRSI(3)
	suite.Require().NoError(err)

	for _, p := range []float64{1, 2, 3, 4, 5} {
		rsi.Update(p)
	}

	suite.Equal(100.0, rsi.Value().Unwrap())
}

func (suite *RSIUnitTestSuite) TestFlatSeriesIsHundred() {
	rsi, err := NewRSI(2)
	suite.Require().NoError(err)

	for _, p := range []float64{5, 5, 5, 5} {
		rsi.Update(p)
	}

	// no losses at all
	suite.Equal(100.0, rsi.Value().Unwrap())
}

func (suite *RSIUnitTestSuite) TestAllLossesIsZero() {
	rsi, err := NewRSI(3)
	suite.Require().NoError(err)

	for _, p := range []float64{5, 4, 3, 2} {
		rsi.Update(p)
	}

	suite.InDelta(0.0, rsi.Value().Unwrap(), 1e-12)
}

func (suite *RSIUnitTestSuite) TestKnownValue() {
	rsi, err := NewRSI(2)
	suite.Require().NoError(err)

	// deltas: +2, -1 -> avgGain 1, avgLoss 0.5, RS 2, RSI 66.666...
	for _, p := range []float64{10, 12, 11} {
		rsi.Update(p)
	}

	suite.InDelta(200.0/3.0, rsi.Value().Unwrap(), 1e-9)

	// delta +1 -> avgGain (1*1+1)/2 = 1, avgLoss (0.5*1+0)/2 = 0.25, RS 4, RSI 80
	suite.InDelta(80.0, rsi.Update(12).Unwrap(), 1e-9)
}

func (suite *RSIUnitTestSuite) TestMatchesBatchCalculation() {
	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
		45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64}

	rsi, err := NewRSI(14)
	suite.Require().NoError(err)

	for _, p := range prices {
		rsi.Update(p)
	}

	value := rsi.Value().Unwrap()
	suite.InDelta(batchRSI(prices, 14), value, 1e-9)
	suite.GreaterOrEqual(value, 0.0)
	suite.LessOrEqual(value, 100.0)
}

func batchRSI(data []float64, period int) float64 {
	gains := make([]float64, 0, len(data)-1)
	losses := make([]float64, 0, len(data)-1)

	for i := 1; i < len(data); i++ {
		change := data[i] - data[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}

	return 100 - (100 / (1 + avgGain/avgLoss))
}
