package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sigreer/devtab/internal/cache"
)

// DefaultPath is the default cache database location
const DefaultPath = "/var/lib/devtab/cache.db"

// Store persists the device cache in SQLite
type Store struct {
	conn *sql.DB
	path string
}

// New opens or creates the cache database at the given path
func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure cache database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// migrate runs the database schema migrations
func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// migrationV1 creates the initial schema
const migrationV1 = `
-- Device name cache: one row per discovered block device alias.
-- Row order (id) preserves cache insertion order.
CREATE TABLE IF NOT EXISTS devices (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    devno INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    verified_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_devices_devno ON devices(devno);

-- One row per completed full probe pass
CREATE TABLE IF NOT EXISTS probe_runs (
    id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    device_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_probe_runs_time ON probe_runs(started_at);
`

// Load merges persisted devices into the cache in their original
// insertion order. Names already in the cache win over persisted rows.
func (s *Store) Load(c *cache.Cache) error {
	rows, err := s.conn.Query("SELECT name, devno, priority, verified_at FROM devices ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to read device cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name       string
			devno      int64
			priority   int
			verifiedAt int64
		)
		if err := rows.Scan(&name, &devno, &priority, &verifiedAt); err != nil {
			return err
		}
		var at time.Time
		if verifiedAt > 0 {
			at = time.Unix(verifiedAt, 0)
		}
		c.Restore(name, uint64(devno), priority, at)
	}
	return rows.Err()
}

// Flush writes the cache back to the database and clears its changed
// flag. An unchanged cache is left alone.
func (s *Store) Flush(c *cache.Cache) error {
	if !c.Changed() {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM devices"); err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO devices (name, devno, priority, verified_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, dev := range c.Devices() {
		var verifiedAt int64
		if !dev.VerifiedAt.IsZero() {
			verifiedAt = dev.VerifiedAt.Unix()
		}
		if _, err := stmt.Exec(dev.Name, int64(dev.Devno), dev.Priority, verifiedAt); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	c.ClearChanged()
	return nil
}

// RecordRun appends a probe-pass audit row
func (s *Store) RecordRun(started, finished time.Time, deviceCount int) error {
	_, err := s.conn.Exec(
		"INSERT INTO probe_runs (id, started_at, finished_at, device_count) VALUES (?, ?, ?, ?)",
		uuid.NewString(), started.UTC(), finished.UTC(), deviceCount,
	)
	return err
}
