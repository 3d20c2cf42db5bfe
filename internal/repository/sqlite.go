package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS regions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			population INTEGER NOT NULL DEFAULT 0,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			risk_low INTEGER,
			risk_high INTEGER
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			region_id TEXT NOT NULL,
			region_name TEXT NOT NULL,
			title TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			disaster_type TEXT NOT NULL,
			risk_score INTEGER NOT NULL,
			recommended_action TEXT,
			status TEXT NOT NULL,
			affected_population INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			resolved_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS broadcasts (
			id TEXT PRIMARY KEY,
			region_id TEXT NOT NULL,
			message TEXT NOT NULL,
			channels TEXT NOT NULL,
			recipient_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			delivered_at INTEGER
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active
			ON alerts(region_id) WHERE status = 'active';
		CREATE INDEX IF NOT EXISTS idx_alerts_region_created ON alerts(region_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
		CREATE INDEX IF NOT EXISTS idx_broadcasts_region_sent ON broadcasts(region_id, sent_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
