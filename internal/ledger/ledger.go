// Package ledger keeps a local append-only history of telemetry attempts and
// pump transitions, so delivery failures can be audited after the fact.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/telemetry"
)

// Kind is the type of a ledger entry.
type Kind string

const (
	KindReport Kind = "report"
	KindPump   Kind = "pump"
)

// DefaultRetention is how long entries are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Entry is one ledger row.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Moisture  float64   `json:"moisture_pct"`
	Target    float64   `json:"target_pct,omitempty"`
	Status    int       `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Pump      string    `json:"pump,omitempty"`
}

// Ledger provides append-only history backed by SQLite.
type Ledger struct {
	db *sql.DB
}

// New creates a Ledger on an open database with the schema in place.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordAttempt appends a telemetry attempt.
func (l *Ledger) RecordAttempt(a telemetry.Attempt) error {
	return l.insert(Entry{
		Kind:      KindReport,
		Timestamp: a.Timestamp,
		Moisture:  a.Moisture,
		Status:    a.Status,
		Error:     a.ErrString(),
	})
}

// RecordPump appends a pump transition.
func (l *Ledger) RecordPump(e logic.PumpEvent) error {
	return l.insert(Entry{
		Kind:      KindPump,
		Timestamp: e.Timestamp,
		Moisture:  e.Moisture,
		Target:    e.Target,
		Pump:      string(e.State),
	})
}

func (l *Ledger) insert(e Entry) error {
	_, err := l.db.Exec(`
		INSERT INTO soil_ledger (id, kind, timestamp, moisture, target, status, error, pump)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), string(e.Kind), e.Timestamp.UnixMilli(), e.Moisture,
		nullFloat(e.Target, e.Kind == KindPump), nullInt(e.Status), nullString(e.Error), nullString(e.Pump))
	if err != nil {
		return fmt.Errorf("insert %s entry: %w", e.Kind, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, kind, timestamp, moisture, target, status, error, pump
		FROM soil_ledger
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			ts      int64
			target  sql.NullFloat64
			status  sql.NullInt64
			errText sql.NullString
			pump    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Kind, &ts, &e.Moisture, &target, &status, &errText, &pump); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Target = target.Float64
		e.Status = int(status.Int64)
		e.Error = errText.String
		e.Pump = pump.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries older than retention before now.
func (l *Ledger) DeleteOlderThan(now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention).UnixMilli()
	result, err := l.db.Exec(`DELETE FROM soil_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old entries: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func nullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
