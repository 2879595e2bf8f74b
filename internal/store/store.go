// Package store persists sessions, transcripts, and plans in SQLite.
// A single store backs one workspace; the database lives at
// .forge/forge.db unless configured otherwise.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"planforge/internal/logging"
	"planforge/internal/retry"
)

// Store wraps the SQLite database. All writes are serialized behind the
// mutex; SQLite holds a single writer anyway and the mutex keeps lock
// contention out of the driver.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string

	// writes retries transient SQLITE_BUSY failures.
	writes retry.Policy
}

// New opens (or creates) the database at path and brings the schema up to
// date.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "New")
	defer timer.Stop()

	logging.Store("opening database at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	// NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("failed to enable foreign_keys: %v", err)
	}

	s := &Store{db: db, dbPath: path, writes: retry.StoragePolicy()}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("database ready (schema v%d)", currentSchemaVersion)
	return s, nil
}

// initialize creates the base tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		working_dir TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT 'chat',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		tool_calls TEXT NOT NULL DEFAULT '',
		tool_use_id TEXT NOT NULL DEFAULT '',
		tool_name TEXT NOT NULL DEFAULT '',
		is_error INTEGER NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		risks TEXT NOT NULL DEFAULT '[]',
		test_strategy TEXT NOT NULL DEFAULT '',
		tech_stack TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		approved_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_plans_session ON plans(session_id);

	CREATE TABLE IF NOT EXISTS plan_tasks (
		id TEXT NOT NULL,
		plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
		task_order INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		task_type TEXT NOT NULL DEFAULT 'other',
		depends_on TEXT NOT NULL DEFAULT '[]',
		complexity INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		status_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		completed_at DATETIME,
		PRIMARY KEY (plan_id, id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// write runs fn under the store mutex with the storage retry policy.
func (s *Store) write(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes.Do(context.Background(), op, fn)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the underlying database.
func (s *Store) Close() error {
	logging.StoreDebug("closing database at %s", s.dbPath)
	return s.db.Close()
}
