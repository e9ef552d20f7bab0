package costlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ahrav/go-fightlens/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another version.
var ErrSchemaMismatch = errors.New("cost log schema version mismatch")

// SQLiteLogger stores entries in a SQLite database.
type SQLiteLogger struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteLogger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	l := &SQLiteLogger{db: db}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLogger) initSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}

	return tx.Commit()
}

// Log implements Logger.
func (l *SQLiteLogger) Log(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO cost_entries
			(request_id, label, operation, model, prompt_tokens, completion_tokens, cost_milli_cents, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Label, e.Operation, e.Model,
		e.PromptTokens, e.CompletionTokens, int64(e.Cost),
		e.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	return nil
}

// Summary totals the entries of one request.
type Summary struct {
	Calls            int               `json:"calls"`
	PromptTokens     int64             `json:"prompt_tokens"`
	CompletionTokens int64             `json:"completion_tokens"`
	Cost             domain.MilliCents `json:"cost_milli_cents"`
}

// RequestSummary returns the totals recorded for requestID.
func (l *SQLiteLogger) RequestSummary(ctx context.Context, requestID string) (Summary, error) {
	var s Summary
	var cost int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(cost_milli_cents), 0)
		 FROM cost_entries WHERE request_id = ?`, requestID,
	).Scan(&s.Calls, &s.PromptTokens, &s.CompletionTokens, &cost)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize request %s: %w", requestID, err)
	}
	s.Cost = domain.MilliCents(cost)
	return s, nil
}

// Entries returns the entries recorded for requestID in insertion order.
func (l *SQLiteLogger) Entries(ctx context.Context, requestID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT request_id, label, operation, model, prompt_tokens, completion_tokens, cost_milli_cents, recorded_at
		 FROM cost_entries WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query cost entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var cost int64
		var recorded string
		if err := rows.Scan(&e.RequestID, &e.Label, &e.Operation, &e.Model,
			&e.PromptTokens, &e.CompletionTokens, &cost, &recorded); err != nil {
			return nil, fmt.Errorf("scan cost entry: %w", err)
		}
		e.Cost = domain.MilliCents(cost)
		if t, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *SQLiteLogger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
