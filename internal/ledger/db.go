package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the database, initializes the schema and returns a Ledger.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return New(db), nil
}

func initSchema(db *sql.DB) error {
	// Append-only history of telemetry attempts and pump transitions
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS soil_ledger (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			moisture REAL NOT NULL,
			target REAL,
			status INTEGER,
			error TEXT,
			pump TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_soil_ledger_ts ON soil_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_soil_ledger_kind_ts ON soil_ledger(kind, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("create soil_ledger table: %w", err)
	}
	return nil
}
