// Package store provides a SQLite-backed journal of push attempts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Outcome classifies a completed push.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeRejected  Outcome = "rejected"
	OutcomeTransport Outcome = "transport"
)

// PushRecord is one completed push attempt.
type PushRecord struct {
	Seq         uint64
	SubmittedAt time.Time
	CompletedAt time.Time
	Instance    string
	Sheet       string
	Outcome     Outcome
	StatusCode  int
	Error       string
	CredValue   float64
	TechValue   float64
	IdeoValue   float64
}

// Totals aggregates the journal by outcome.
type Totals struct {
	Attempts  int
	OK        int
	Rejected  int
	Transport int
}

// Journal records push attempts in SQLite.
type Journal struct {
	db *sql.DB
}

// DefaultPath returns the journal location under the user cache dir.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "incomesync", "journal.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "incomesync", "journal.db")
}

// Open opens or creates the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordPush appends r.
func (j *Journal) RecordPush(r PushRecord) error {
	_, err := j.db.Exec(`INSERT INTO push_attempts
		(seq, submitted_at, completed_at, instance, sheet, outcome,
		 status_code, error, cred_value, tech_value, ideo_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.Seq), formatTime(r.SubmittedAt), formatTime(r.CompletedAt), r.Instance, r.Sheet, string(r.Outcome),
		r.StatusCode, r.Error, r.CredValue, r.TechValue, r.IdeoValue,
	)
	if err != nil {
		return fmt.Errorf("recording push: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]PushRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.Query(`SELECT
		seq, submitted_at, completed_at, instance, sheet, outcome,
		status_code, error, cred_value, tech_value, ideo_value
		FROM push_attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PushRecord
	for rows.Next() {
		var (
			r                   PushRecord
			seq                 int64
			submitted, complete string
			outcome             string
			status              sql.NullInt64
			errText             sql.NullString
		)
		if err := rows.Scan(&seq, &submitted, &complete, &r.Instance, &r.Sheet, &outcome,
			&status, &errText, &r.CredValue, &r.TechValue, &r.IdeoValue); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.Outcome = Outcome(outcome)
		r.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submitted)
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, complete)
		if status.Valid {
			r.StatusCode = int(status.Int64)
		}
		if errText.Valid {
			r.Error = errText.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Totals counts attempts by outcome.
func (j *Journal) Totals() (Totals, error) {
	rows, err := j.db.Query("SELECT outcome, COUNT(*) FROM push_attempts GROUP BY outcome")
	if err != nil {
		return Totals{}, err
	}
	defer func() { _ = rows.Close() }()

	var t Totals
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return Totals{}, err
		}
		t.Attempts += n
		switch Outcome(outcome) {
		case OutcomeOK:
			t.OK = n
		case OutcomeRejected:
			t.Rejected = n
		case OutcomeTransport:
			t.Transport = n
		}
	}
	return t, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
