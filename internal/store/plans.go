package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"planforge/internal/plan"
)

// SavePlan upserts the plan row and replaces its task rows in one
// transaction. The plan engine calls this after every state transition, so
// the write must be all-or-nothing.
func (s *Store) SavePlan(d *plan.Document) error {
	return s.write("SavePlan", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin plan transaction: %w", err)
		}
		defer tx.Rollback()

		risks, _ := json.Marshal(d.Risks)
		techStack, _ := json.Marshal(d.TechStack)

		_, err = tx.Exec(`
			INSERT INTO plans (id, session_id, title, description, context,
				risks, test_strategy, tech_stack, status, created_at,
				updated_at, approved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				context = excluded.context,
				risks = excluded.risks,
				test_strategy = excluded.test_strategy,
				tech_stack = excluded.tech_stack,
				status = excluded.status,
				updated_at = excluded.updated_at,
				approved_at = excluded.approved_at`,
			d.ID, d.SessionID, d.Title, d.Description, d.Context,
			string(risks), d.TestStrategy, string(techStack), string(d.Status),
			d.CreatedAt, d.UpdatedAt, d.ApprovedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert plan: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM plan_tasks WHERE plan_id = ?", d.ID); err != nil {
			return fmt.Errorf("failed to clear plan tasks: %w", err)
		}
		for _, t := range d.Tasks {
			deps, _ := json.Marshal(t.DependsOn)
			_, err := tx.Exec(`
				INSERT INTO plan_tasks (id, plan_id, task_order, title,
					description, task_type, depends_on, complexity, status,
					status_reason, notes, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, d.ID, t.Order, t.Title, t.Description, string(t.Type),
				string(deps), t.Complexity, string(t.Status), t.StatusReason,
				t.Notes, t.CompletedAt)
			if err != nil {
				return fmt.Errorf("failed to insert plan task %s: %w", t.ID, err)
			}
		}

		return tx.Commit()
	})
}

// GetPlan loads a plan with its tasks. Returns (nil, nil) when absent; the
// engine turns that into its own not-found error.
func (s *Store) GetPlan(id string) (*plan.Document, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, title, description, context, risks,
			test_strategy, tech_stack, status, created_at, updated_at,
			approved_at
		FROM plans WHERE id = ?`, id)

	d, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadTasks(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListPlansBySession returns a session's plans, newest first.
func (s *Store) ListPlansBySession(sessionID string) ([]*plan.Document, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, title, description, context, risks,
			test_strategy, tech_stack, status, created_at, updated_at,
			approved_at
		FROM plans WHERE session_id = ?
		ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []*plan.Document
	for rows.Next() {
		d, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range out {
		if err := s.loadTasks(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanPlan(row rowScanner) (*plan.Document, error) {
	var d plan.Document
	var risks, techStack, status string
	err := row.Scan(&d.ID, &d.SessionID, &d.Title, &d.Description, &d.Context,
		&risks, &d.TestStrategy, &techStack, &status,
		&d.CreatedAt, &d.UpdatedAt, &d.ApprovedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	d.Status = plan.Status(status)
	json.Unmarshal([]byte(risks), &d.Risks)
	json.Unmarshal([]byte(techStack), &d.TechStack)
	return &d, nil
}

func (s *Store) loadTasks(d *plan.Document) error {
	rows, err := s.db.Query(`
		SELECT id, task_order, title, description, task_type, depends_on,
			complexity, status, status_reason, notes, completed_at
		FROM plan_tasks WHERE plan_id = ?
		ORDER BY task_order ASC`, d.ID)
	if err != nil {
		return fmt.Errorf("failed to load plan tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t plan.Task
		var taskType, status, deps string
		if err := rows.Scan(&t.ID, &t.Order, &t.Title, &t.Description,
			&taskType, &deps, &t.Complexity, &status, &t.StatusReason,
			&t.Notes, &t.CompletedAt); err != nil {
			return fmt.Errorf("failed to scan plan task: %w", err)
		}
		t.Type = plan.TaskType(taskType)
		t.Status = plan.TaskStatus(status)
		json.Unmarshal([]byte(deps), &t.DependsOn)
		d.Tasks = append(d.Tasks, t)
	}
	return rows.Err()
}
