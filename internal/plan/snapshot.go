package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"planforge/internal/logging"
)

// Snapshotter mirrors plan documents to JSON files for crash recovery.
// The SQLite store remains authoritative; snapshots exist so a wedged or
// crashed process leaves a human-inspectable copy of the plan state.
type Snapshotter struct {
	dir string
}

// NewSnapshotter creates a snapshotter writing under dir.
func NewSnapshotter(dir string) *Snapshotter {
	return &Snapshotter{dir: dir}
}

// path keys snapshots by session id: at most one active plan per session.
func (s *Snapshotter) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the full document atomically (temp file + rename).
func (s *Snapshotter) Save(d *Document) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan snapshot: %w", err)
	}

	tmp := s.path(d.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path(d.SessionID)); err != nil {
		return fmt.Errorf("failed to finalize plan snapshot: %w", err)
	}

	logging.PlanDebug("snapshot saved: session=%s plan=%s status=%s", d.SessionID, d.ID, d.Status)
	return nil
}

// Load reads the snapshot for a session. Returns os.ErrNotExist when none.
func (s *Snapshotter) Load(sessionID string) (*Document, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse plan snapshot: %w", err)
	}
	return &d, nil
}

// Remove deletes the snapshot for a session, ignoring a missing file.
func (s *Snapshotter) Remove(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
