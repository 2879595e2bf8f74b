package store

import (
	"database/sql"
	"fmt"

	"planforge/internal/logging"
)

// Schema versions:
// v1: sessions, messages, plans, plan_tasks base tables
// v2: sessions.mode column (persisted interaction mode)
const currentSchemaVersion = 2

// migration adds one column to an existing table. Tables missing from the
// database are skipped; initialize creates them with the column already
// present.
type migration struct {
	version int
	table   string
	column  string
	def     string
}

var pendingMigrations = []migration{
	{2, "sessions", "mode", "TEXT NOT NULL DEFAULT 'chat'"},
}

// runMigrations brings an existing database up to currentSchemaVersion.
func (s *Store) runMigrations() error {
	timer := logging.StartTimer(logging.CategoryStore, "runMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		if s.versionApplied(m.version) {
			continue
		}
		if tableExists(s.db, m.table) && !columnExists(s.db, m.table, m.column) {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration v%d (%s.%s) failed: %w", m.version, m.table, m.column, err)
			}
			applied++
		}
		if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_versions (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_versions (version) VALUES (1)"); err != nil {
		return fmt.Errorf("failed to record schema version 1: %w", err)
	}

	if applied > 0 {
		logging.Store("applied %d schema migrations", applied)
	}
	return nil
}

func (s *Store) versionApplied(version int) bool {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", version).Scan(&n)
	return err == nil && n > 0
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
