package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/bandit/pkg/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS metric_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          INTEGER NOT NULL,
	session_id  TEXT NOT NULL,
	site        TEXT NOT NULL,
	experiment  TEXT NOT NULL,
	variant     TEXT NOT NULL,
	name        TEXT NOT NULL,
	value       REAL NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_metric_events_site ON metric_events (site, experiment, variant);
`

// EventStore implements ports.EventWriter on SQLite.
// It keeps raw events only; aggregation is a plain GROUP BY in Stats.
type EventStore struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*EventStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &EventStore{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *EventStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WriteEvents inserts a batch in one transaction.
func (s *EventStore) WriteEvents(ctx context.Context, events []domain.MetricEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO metric_events (ts, session_id, site, experiment, variant, name, value)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if e.Name == "" {
			return fmt.Errorf("event name is required")
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			ts.UTC().UnixMilli(),
			e.SessionID,
			e.Site,
			e.Experiment,
			e.Variant,
			e.Name,
			e.Value,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// VariantStats holds raw event counts of one variant.
type VariantStats struct {
	Experiment string           `json:"experiment"`
	Variant    string           `json:"variant"`
	Counts     map[string]int64 `json:"counts"`
	Sessions   int64            `json:"sessions"`
}

// Stats aggregates events of a site, optionally restricted to one experiment.
// Rows are ordered by experiment then variant.
func (s *EventStore) Stats(ctx context.Context, site, experiment string) ([]VariantStats, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT experiment, variant, name, COUNT(*), COUNT(DISTINCT session_id)
FROM metric_events
WHERE site = ? AND (? = '' OR experiment = ?)
GROUP BY experiment, variant, name
ORDER BY experiment, variant, name
`, site, experiment, experiment)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []VariantStats
	for rows.Next() {
		var exp, variant, name string
		var count, sessions int64
		if err := rows.Scan(&exp, &variant, &name, &count, &sessions); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}

		if n := len(out); n == 0 || out[n-1].Experiment != exp || out[n-1].Variant != variant {
			out = append(out, VariantStats{Experiment: exp, Variant: variant, Counts: map[string]int64{}})
		}
		last := &out[len(out)-1]
		last.Counts[name] = count
		if sessions > last.Sessions {
			last.Sessions = sessions
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return out, nil
}
