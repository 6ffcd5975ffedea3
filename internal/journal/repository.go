// Package journal keeps a history of alarm lifecycle transitions in the
// alarm_events table.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Event kinds.
const (
	KindActivated    = "activated"
	KindAcknowledged = "acknowledged"
	KindDisabled     = "disabled"
	KindCleared      = "cleared"
)

// Alarm sources.
const (
	SourceBackend = "backend"
	SourceEngine  = "engine"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded alarm transition.
type Entry struct {
	ID          int64     `json:"id"`
	AlarmID     string    `json:"alarm_id"`
	Kind        string    `json:"kind"`
	Source      string    `json:"source"`
	Severity    string    `json:"severity"`
	Title       string    `json:"title,omitempty"`
	Things      []string  `json:"things,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitzero"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Repository defines the journal storage operations.
type Repository interface {
	Append(ctx context.Context, entries []Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// SQLiteRepository stores entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts entries in one transaction. RecordedAt is set to now when
// zero.
func (r *SQLiteRepository) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO alarm_events (alarm_id, kind, source, severity, title, things, activated_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing journal insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		if e.RecordedAt.IsZero() {
			e.RecordedAt = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx,
			e.AlarmID, e.Kind, e.Source, e.Severity, e.Title,
			strings.Join(e.Things, ","),
			nullableTime(e.ActivatedAt),
			e.RecordedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting journal entry %s: %w", e.AlarmID, err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading journal entry id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing journal entries: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first. n defaults to 50 and is
// capped at 500.
func (r *SQLiteRepository) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = defaultLimit
	}
	if n > maxLimit {
		n = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, alarm_id, kind, source, severity, title, things, activated_at, recorded_at
		 FROM alarm_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			things      string
			activatedAt sql.NullString
			recordedAt  string
		)
		if err := rows.Scan(&e.ID, &e.AlarmID, &e.Kind, &e.Source, &e.Severity, &e.Title,
			&things, &activatedAt, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if things != "" {
			e.Things = strings.Split(things, ",")
		}
		if activatedAt.Valid {
			if e.ActivatedAt, err = time.Parse(time.RFC3339Nano, activatedAt.String); err != nil {
				return nil, fmt.Errorf("parsing activated_at of entry %d: %w", e.ID, err)
			}
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at of entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// nullableTime returns nil for the zero time so the column stays NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
