package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type JournalTestSuite struct {
	suite.Suite
	journal *Journal
	ts      time.Time
}

func TestJournalSuite(t *testing.T) {
	suite.Run(t, new(JournalTestSuite))
}

func (suite *JournalTestSuite) SetupTest() {
	j, err := Open(InMemory)
	suite.Require().NoError(err)

	suite.journal = j
	suite.ts = time.Date(2026, 4, 1, 13, 20, 0, 0, time.UTC)
}

func (suite *JournalTestSuite) TearDownTest() {
	suite.NoError(suite.journal.Close())
}

func (suite *JournalTestSuite) decision(minute int, decision types.Decision) types.DecisionRecord {
	ts := suite.ts.Add(time.Duration(minute) * time.Minute)

	return types.DecisionRecord{
		Timestamp: ts,
		Symbol:    "ETHUSD",
		Snapshot: types.IndicatorSnapshot{
			Timestamp: ts,
			Close:     decimal.RequireFromString("95.25"),
			Trend:     optional.Some(decimal.RequireFromString("100.125")),
			Momentum:  optional.None[decimal.Decimal](),
		},
		State:    types.StateFlat,
		Decision: decision,
		Acted:    decision != types.DecisionNone,
		Note:     "",
	}
}

func (suite *JournalTestSuite) TestSchemaVersionRecorded() {
	v, err := suite.journal.SchemaVersion()
	suite.NoError(err)
	suite.Equal(SchemaVersion, v)
	suite.Equal(InMemory, suite.journal.Path())
}

func (suite *JournalTestSuite) TestDecisionRoundTrip() {
	suite.NoError(suite.journal.RecordDecision(suite.decision(0, types.DecisionNone)))
	suite.NoError(suite.journal.RecordDecision(suite.decision(10, types.DecisionEnter)))

	records, err := suite.journal.Decisions(0)
	suite.NoError(err)
	suite.Require().Len(records, 2)

	got := records[1]
	suite.True(suite.ts.Add(10 * time.Minute).Equal(got.Timestamp))
	suite.Equal("ETHUSD", got.Symbol)
	suite.True(decimal.RequireFromString("95.25").Equal(got.Snapshot.Close))
	suite.True(got.Snapshot.Trend.IsSome())
	suite.True(decimal.RequireFromString("100.125").Equal(got.Snapshot.Trend.Unwrap()))
	suite.True(got.Snapshot.Momentum.IsNone())
	suite.Equal(types.StateFlat, got.State)
	suite.Equal(types.DecisionEnter, got.Decision)
	suite.True(got.Acted)
}

func (suite *JournalTestSuite) TestDecisionsLimitKeepsNewest() {
	for i := 0; i < 5; i++ {
		suite.NoError(suite.journal.RecordDecision(suite.decision(i*10, types.DecisionNone)))
	}

	records, err := suite.journal.Decisions(2)
	suite.NoError(err)
	suite.Require().Len(records, 2)
	suite.True(suite.ts.Add(30 * time.Minute).Equal(records[0].Timestamp))
	suite.True(suite.ts.Add(40 * time.Minute).Equal(records[1].Timestamp))
}

func (suite *JournalTestSuite) TestOrderRoundTrip() {
	order := types.OutstandingOrder{
		OrderID:           "1001",
		ClientOrderID:     "client-1",
		Side:              types.OrderSideBuy,
		RequestedPrice:    decimal.RequireFromString("3.33"),
		RequestedQuantity: decimal.RequireFromString("30.067103"),
		PlacedAt:          suite.ts,
	}

	suite.NoError(suite.journal.RecordOrder(types.OrderRecord{Timestamp: suite.ts, Event: types.OrderEventPlaced, Order: order, Message: ""}))
	suite.NoError(suite.journal.RecordOrder(types.OrderRecord{Timestamp: suite.ts.Add(10 * time.Minute), Event: types.OrderEventCancelled, Order: order, Message: "not filled"}))

	records, err := suite.journal.Orders()
	suite.NoError(err)
	suite.Require().Len(records, 2)
	suite.Equal(types.OrderEventPlaced, records[0].Event)
	suite.Equal(types.OrderEventCancelled, records[1].Event)
	suite.Equal("not filled", records[1].Message)
	suite.Equal("1001", records[1].Order.OrderID)
	suite.Equal(types.OrderSideBuy, records[1].Order.Side)
	suite.Equal("30.067103", records[1].Order.RequestedQuantity.String())
	suite.True(suite.ts.Equal(records[1].Order.PlacedAt))
}

func (suite *JournalTestSuite) TestReopenFileAndExport() {
	dir := suite.T().TempDir()
	path := filepath.Join(dir, "run_1", "journal.duckdb")

	j, err := Open(path)
	suite.Require().NoError(err)
	suite.NoError(j.RecordDecision(suite.decision(0, types.DecisionNone)))
	suite.NoError(j.Close())
	suite.NoError(j.Close())

	reopened, err := Open(path)
	suite.Require().NoError(err)
	defer reopened.Close()

	records, err := reopened.Decisions(0)
	suite.NoError(err)
	suite.Len(records, 1)

	exportDir := filepath.Join(dir, "export")
	suite.NoError(reopened.ExportParquet(exportDir))
	suite.FileExists(filepath.Join(exportDir, "decisions.parquet"))
	suite.FileExists(filepath.Join(exportDir, "orders.parquet"))
}

func (suite *JournalTestSuite) TestRejectsNewerSchema() {
	path := filepath.Join(suite.T().TempDir(), "journal.duckdb")

	j, err := Open(path)
	suite.Require().NoError(err)
	_, err = j.db.Exec("UPDATE meta SET value = '9.0.0' WHERE key = 'schema_version'")
	suite.Require().NoError(err)
	suite.NoError(j.Close())

	_, err = Open(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidVersion))

	_, statErr := os.Stat(path)
	suite.NoError(statErr)
}
