// Package store persists alerts, devices, scans and scheduled jobs in a
// local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database. All methods are safe for concurrent use;
// SQLite itself serializes writes through the single pooled connection.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the database at path and initializes the
// schema.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas in the DSN so every pool connection is configured.
	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("dbPath", path).Msg("Store initialized")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		source_tool TEXT NOT NULL,
		source_event_id TEXT,
		category TEXT,
		device_ip TEXT,
		fingerprint TEXT,
		count INTEGER NOT NULL DEFAULT 1,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		raw_data TEXT,
		correlation_id TEXT,
		notes TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
	CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON alerts(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_alerts_device_ip ON alerts(device_ip);
	CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		ip_address TEXT NOT NULL,
		mac_address TEXT,
		hostname TEXT,
		vendor TEXT,
		os_family TEXT,
		os_version TEXT,
		device_type TEXT,
		status TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip_address);
	CREATE INDEX IF NOT EXISTS idx_devices_mac ON devices(mac_address) WHERE mac_address != '';
	CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);

	CREATE TABLE IF NOT EXISTS ports (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		port_number INTEGER NOT NULL,
		protocol TEXT NOT NULL,
		state TEXT NOT NULL,
		service_name TEXT,
		service_version TEXT,
		banner TEXT,
		UNIQUE(device_id, port_number, protocol)
	);

	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		scan_type TEXT NOT NULL,
		tool TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER,
		completed_at INTEGER,
		result_summary TEXT,
		error_message TEXT,
		parameters TEXT,
		results TEXT,
		devices_found INTEGER NOT NULL DEFAULT 0,
		alerts_generated INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
	CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);

	CREATE TABLE IF NOT EXISTS scheduled_jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		cron_expr TEXT,
		interval_seconds INTEGER NOT NULL DEFAULT 0,
		task_type TEXT NOT NULL,
		task_params TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_run INTEGER,
		next_run INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, strftime('%s','now'))`)
	return err
}

// marshalJSON encodes a map column, returning NULL for empty maps.
func marshalJSON(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// nullTime converts a *time.Time to a nullable unix-seconds column value.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func unmarshalJSON(raw sql.NullString) map[string]interface{} {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		log.Warn().Err(err).Msg("Failed to decode JSON column")
		return nil
	}
	return m
}
