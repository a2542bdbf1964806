package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const journalSchema = `CREATE TABLE IF NOT EXISTS envq_events (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT NOT NULL,
	namespace   TEXT NOT NULL,
	key         TEXT NOT NULL DEFAULT '',
	operation   TEXT NOT NULL DEFAULT '',
	sequence    BIGINT NOT NULL DEFAULT 0,
	envelope_id TEXT NOT NULL DEFAULT '',
	try         INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	count       INTEGER NOT NULL DEFAULT 0,
	occurred_at TIMESTAMPTZ NOT NULL
)`

const journalInsert = `INSERT INTO envq_events (kind, namespace, key, operation, sequence, envelope_id, try, reason, count, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// JournalReporter appends every event to a Postgres table.
type JournalReporter struct {
	db *sql.DB
}

// OpenJournal connects to Postgres.
func OpenJournal(dsn string) (*JournalReporter, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn not configured")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &JournalReporter{db: db}, nil
}

// NewJournal wraps an existing handle.
func NewJournal(db *sql.DB) *JournalReporter {
	return &JournalReporter{db: db}
}

// Migrate creates the events table if it does not exist.
func (j *JournalReporter) Migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

func (j *JournalReporter) Report(ctx context.Context, evt Event) error {
	_, err := j.db.ExecContext(ctx, journalInsert,
		string(evt.Kind), evt.Namespace, evt.Key, evt.Operation, evt.Sequence,
		evt.ID, evt.Try, evt.Reason, evt.Count, evt.Time.UTC())
	if err != nil {
		return fmt.Errorf("insert journal event: %w", err)
	}
	return nil
}

func (j *JournalReporter) Close() error { return j.db.Close() }
