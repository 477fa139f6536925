// Package store provides the append-only SQLite result sink.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"exam-proctor-service/internal/models"
)

// ErrNotFound is returned when no result matches.
var ErrNotFound = models.ErrResultNotFound

// Schema for the result store. Rows are never updated or deleted.
const schema = `
CREATE TABLE IF NOT EXISTS results (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL UNIQUE,
    participant_id  TEXT NOT NULL,
    created_ns      INTEGER NOT NULL,
    submit_trigger  TEXT NOT NULL,
    warning_count   INTEGER NOT NULL,
    high_count      INTEGER NOT NULL,
    payload         BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_participant ON results(participant_id, created_ns);
CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_ns);
`

// Summary is one row of List.
type Summary struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"sessionId"`
	ParticipantID string               `json:"participantId"`
	Timestamp     time.Time            `json:"timestamp"`
	Trigger       models.SubmitTrigger `json:"trigger"`
	Warnings      int                  `json:"warnings"`
	HighSeverity  int                  `json:"highSeverity"`
}

// SQLiteSink stores results as zstd-compressed JSON.
type SQLiteSink struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*SQLiteSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &SQLiteSink{db: db, enc: enc, dec: dec}, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Append durably inserts a result. A second append of the same result or
// session fails.
func (s *SQLiteSink) Append(ctx context.Context, r *models.ExamResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	payload := s.enc.EncodeAll(raw, nil)

	high := 0
	for _, a := range r.Anomalies {
		if a.Severity == models.SeverityHigh {
			high++
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, session_id, participant_id, created_ns, submit_trigger, warning_count, high_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.ParticipantID, r.Timestamp.UnixNano(), string(r.Trigger), len(r.Warnings), high, payload,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Get returns the result with the given result or session ID.
func (s *SQLiteSink) Get(ctx context.Context, id string) (*models.ExamResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM results WHERE id = ? OR session_id = ? LIMIT 1`, id, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}

	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress result: %w", err)
	}
	var r models.ExamResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// List returns the most recent results first. participantID filters when
// non-empty.
func (s *SQLiteSink) List(ctx context.Context, participantID string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, participant_id, created_ns, submit_trigger, warning_count, high_count
		FROM results`
	args := []any{}
	if participantID != "" {
		query += ` WHERE participant_id = ?`
		args = append(args, participantID)
	}
	query += ` ORDER BY created_ns DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			createdNs int64
			trigger   string
		)
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.ParticipantID, &createdNs, &trigger, &sum.Warnings, &sum.HighSeverity); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		sum.Timestamp = time.Unix(0, createdNs).UTC()
		sum.Trigger = models.SubmitTrigger(trigger)
		out = append(out, sum)
	}
	return out, rows.Err()
}
