// Package history persists a per-session log of execute calls so failures can
// be inspected after the run. Records carry a script fingerprint, not the
// source itself.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Statuses recorded for an execute call.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is one persisted execute call.
type Record struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
	Kind        string    `json:"kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Store reads and writes execute history rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a record. A zero ID or RecordedAt is filled in.
func (s *Store) Append(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execute_history (id, call_id, fingerprint, status, kind, error, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.CallID, rec.Fingerprint, rec.Status, rec.Kind, rec.Error,
		rec.DurationMs, rec.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert history record: %w", err)
	}
	return rec.ID, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, call_id, fingerprint, status, kind, error, duration_ms, recorded_at
		 FROM execute_history ORDER BY recorded_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var kind, errText sql.NullString
		var recordedAt string
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.Fingerprint, &rec.Status,
			&kind, &errText, &rec.DurationMs, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.Kind = kind.String
		rec.Error = errText.String
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			rec.RecordedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records older than retention. Returns rows removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM execute_history WHERE recorded_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
