// Package journal persists every evaluated decision and order event to DuckDB.
package journal

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/internal/version"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

// SchemaVersion is the journal layout written by this binary.
const SchemaVersion = "1.0.0"

// InMemory opens a journal that lives only as long as the process.
const InMemory = ":memory:"

const schemaVersionKey = "schema_version"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE SEQUENCE IF NOT EXISTS decision_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id BIGINT PRIMARY KEY DEFAULT nextval('decision_id_seq'),
		timestamp TIMESTAMP,
		symbol TEXT,
		close TEXT,
		trend TEXT,
		momentum TEXT,
		state TEXT,
		decision TEXT,
		acted BOOLEAN,
		note TEXT
	)`,
	`CREATE SEQUENCE IF NOT EXISTS order_event_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS order_events (
		id BIGINT PRIMARY KEY DEFAULT nextval('order_event_id_seq'),
		timestamp TIMESTAMP,
		event TEXT,
		order_id TEXT,
		client_order_id TEXT,
		side TEXT,
		price TEXT,
		quantity TEXT,
		placed_at TIMESTAMP,
		message TEXT
	)`,
}

// Journal is a DuckDB-backed record of decisions and order events.
// It is safe for concurrent use.
type Journal struct {
	db   *sql.DB
	sq   squirrel.StatementBuilderType
	path string
	mu   sync.Mutex
}

// Open opens or creates the journal at path. Use InMemory for a throwaway journal.
// An existing journal written with an incompatible schema is rejected.
func Open(path string) (*Journal, error) {
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create journal directory", err)
		}
	}

	dsn := path
	if path == InMemory {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to open DuckDB connection", err)
	}

	// a single connection keeps an in-memory database alive across calls
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:   db,
		sq:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		path: path,
		mu:   sync.Mutex{},
	}

	if err := j.migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return j, nil
}

func (j *Journal) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := j.db.Exec(stmt); err != nil {
			return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create journal schema", err)
		}
	}

	stored, err := j.storedSchemaVersion()
	if err != nil {
		return err
	}

	if stored.IsNone() {
		_, err := j.sq.Insert("meta").
			Columns("key", "value").
			Values(schemaVersionKey, SchemaVersion).
			RunWith(j.db).
			Exec()
		if err != nil {
			return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to record schema version", err)
		}

		return nil
	}

	return version.CheckSchemaCompatibility(SchemaVersion, stored.Unwrap())
}

func (j *Journal) storedSchemaVersion() (optional.Option[string], error) {
	var value string

	err := j.sq.Select("value").
		From("meta").
		Where(squirrel.Eq{"key": schemaVersionKey}).
		RunWith(j.db).
		QueryRow().
		Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return optional.None[string](), nil
	}

	if err != nil {
		return optional.None[string](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to read schema version", err)
	}

	return optional.Some(value), nil
}

// SchemaVersion returns the schema version stored in the journal.
func (j *Journal) SchemaVersion() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored, err := j.storedSchemaVersion()
	if err != nil {
		return "", err
	}

	return stored.TakeOr(""), nil
}

// Path returns the database path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

// RecordDecision appends one evaluated cycle.
func (j *Journal) RecordDecision(record types.DecisionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.sq.Insert("decisions").
		Columns("timestamp", "symbol", "close", "trend", "momentum", "state", "decision", "acted", "note").
		Values(
			record.Timestamp.UTC(), record.Symbol, record.Snapshot.Close.String(),
			nullableDecimal(record.Snapshot.Trend), nullableDecimal(record.Snapshot.Momentum),
			string(record.State), string(record.Decision), record.Acted, record.Note,
		).
		RunWith(j.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to insert decision", err)
	}

	return nil
}

// RecordOrder appends one order lifecycle event.
func (j *Journal) RecordOrder(record types.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.sq.Insert("order_events").
		Columns("timestamp", "event", "order_id", "client_order_id", "side", "price", "quantity", "placed_at", "message").
		Values(
			record.Timestamp.UTC(), string(record.Event), record.Order.OrderID, record.Order.ClientOrderID,
			string(record.Order.Side), record.Order.RequestedPrice.String(), record.Order.RequestedQuantity.String(),
			record.Order.PlacedAt.UTC(), record.Message,
		).
		RunWith(j.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to insert order event", err)
	}

	return nil
}

// Decisions returns the most recent decisions, oldest first. limit <= 0 returns all.
func (j *Journal) Decisions(limit int) ([]types.DecisionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := j.sq.Select("timestamp", "symbol", "close", "trend", "momentum", "state", "decision", "acted", "note").
		From("decisions").
		OrderBy("id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	rows, err := query.RunWith(j.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query decisions", err)
	}
	defer rows.Close()

	records := make([]types.DecisionRecord, 0)

	for rows.Next() {
		var (
			record                    types.DecisionRecord
			closeStr, state, decision string
			trend, momentum           sql.NullString
		)

		if err := rows.Scan(&record.Timestamp, &record.Symbol, &closeStr, &trend, &momentum,
			&state, &decision, &record.Acted, &record.Note); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan decision", err)
		}

		record.Snapshot.Timestamp = record.Timestamp

		if record.Snapshot.Close, err = decimal.NewFromString(closeStr); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "invalid close in journal", err)
		}

		if record.Snapshot.Trend, err = parseNullableDecimal(trend); err != nil {
			return nil, err
		}

		if record.Snapshot.Momentum, err = parseNullableDecimal(momentum); err != nil {
			return nil, err
		}

		record.State = types.LifecycleState(state)
		record.Decision = types.Decision(decision)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate decisions", err)
	}

	// rows came newest first
	for i, k := 0, len(records)-1; i < k; i, k = i+1, k-1 {
		records[i], records[k] = records[k], records[i]
	}

	return records, nil
}

// Orders returns every order event in insertion order.
func (j *Journal) Orders() ([]types.OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.sq.Select("timestamp", "event", "order_id", "client_order_id", "side", "price", "quantity", "placed_at", "message").
		From("order_events").
		OrderBy("id ASC").
		RunWith(j.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query order events", err)
	}
	defer rows.Close()

	records := make([]types.OrderRecord, 0)

	for rows.Next() {
		var (
			record          types.OrderRecord
			event, side     string
			price, quantity string
		)

		if err := rows.Scan(&record.Timestamp, &event, &record.Order.OrderID, &record.Order.ClientOrderID,
			&side, &price, &quantity, &record.Order.PlacedAt, &record.Message); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order event", err)
		}

		record.Event = types.OrderEvent(event)
		record.Order.Side = types.OrderSide(side)

		if record.Order.RequestedPrice, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "invalid price in journal", err)
		}

		if record.Order.RequestedQuantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "invalid quantity in journal", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate order events", err)
	}

	return records, nil
}

// ExportParquet writes decisions.parquet and orders.parquet into dir.
func (j *Journal) ExportParquet(dir string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create export directory", err)
	}

	exports := map[string]string{
		"decisions":    filepath.Join(dir, "decisions.parquet"),
		"order_events": filepath.Join(dir, "orders.parquet"),
	}

	for table, target := range exports {
		_, err := j.db.Exec(fmt.Sprintf(`
			COPY (SELECT * FROM %s ORDER BY id ASC)
			TO '%s' (FORMAT PARQUET)
		`, table, escapeLiteral(target)))
		if err != nil {
			return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to export %s to parquet", table)
		}
	}

	return nil
}

// Close releases the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}

	err := j.db.Close()
	j.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to close journal", err)
	}

	return nil
}

func nullableDecimal(v optional.Option[decimal.Decimal]) sql.NullString {
	if v.IsNone() {
		return sql.NullString{String: "", Valid: false}
	}

	return sql.NullString{String: v.Unwrap().String(), Valid: true}
}

func parseNullableDecimal(v sql.NullString) (optional.Option[decimal.Decimal], error) {
	if !v.Valid {
		return optional.None[decimal.Decimal](), nil
	}

	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return optional.None[decimal.Decimal](), errors.Wrapf(errors.ErrCodeQueryFailed, err, "invalid decimal %q in journal", v.String)
	}

	return optional.Some(d), nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
