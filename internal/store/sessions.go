package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planforge/internal/logging"
	"planforge/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sess *types.Session) error {
	if sess.Mode == "" {
		sess.Mode = types.ModeChat
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	return s.write("CreateSession", func() error {
		_, err := s.db.Exec(`
			INSERT INTO sessions (id, title, working_dir, model, mode,
				input_tokens, output_tokens, cost, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.Title, sess.WorkingDir, sess.Model, string(sess.Mode),
			sess.InputTokens, sess.OutputTokens, sess.Cost,
			sess.CreatedAt, sess.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		logging.StoreDebug("session created: %s", sess.ID)
		return nil
	})
}

// UpdateSession persists current session metadata and accounting.
func (s *Store) UpdateSession(sess *types.Session) error {
	sess.UpdatedAt = time.Now()
	return s.write("UpdateSession", func() error {
		res, err := s.db.Exec(`
			UPDATE sessions SET title = ?, working_dir = ?, model = ?, mode = ?,
				input_tokens = ?, output_tokens = ?, cost = ?, updated_at = ?
			WHERE id = ?`,
			sess.Title, sess.WorkingDir, sess.Model, string(sess.Mode),
			sess.InputTokens, sess.OutputTokens, sess.Cost, sess.UpdatedAt,
			sess.ID)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: session %s", ErrNotFound, sess.ID)
		}
		return nil
	})
}

// GetSession loads a session by id.
func (s *Store) GetSession(id string) (*types.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, title, working_dir, model, mode,
			input_tokens, output_tokens, cost, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions() ([]*types.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, working_dir, model, mode,
			input_tokens, output_tokens, cost, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via cascade, its messages.
func (s *Store) DeleteSession(id string) error {
	return s.write("DeleteSession", func() error {
		if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var mode string
	err := row.Scan(&sess.ID, &sess.Title, &sess.WorkingDir, &sess.Model, &mode,
		&sess.InputTokens, &sess.OutputTokens, &sess.Cost,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.Mode = types.Mode(mode)
	return &sess, nil
}

// SaveMessage appends one transcript entry.
func (s *Store) SaveMessage(m *types.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return s.write("SaveMessage", func() error {
		_, err := s.db.Exec(`
			INSERT INTO messages (id, session_id, role, content, tool_calls,
				tool_use_id, tool_name, is_error, input_tokens, output_tokens,
				cost, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Role), m.Content, m.ToolCalls,
			m.ToolUseID, m.ToolName, m.IsError,
			m.Usage.InputTokens, m.Usage.OutputTokens, m.Cost, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		return nil
	})
}

// GetMessages returns a session's transcript in chronological order.
func (s *Store) GetMessages(sessionID string) ([]*types.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, tool_calls, tool_use_id,
			tool_name, is_error, input_tokens, output_tokens, cost, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []*types.Message
	for rows.Next() {
		var m types.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.ToolCalls,
			&m.ToolUseID, &m.ToolName, &m.IsError,
			&m.Usage.InputTokens, &m.Usage.OutputTokens, &m.Cost, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = types.MessageRole(role)
		m.Usage.TotalTokens = m.Usage.InputTokens + m.Usage.OutputTokens
		out = append(out, &m)
	}
	return out, rows.Err()
}
