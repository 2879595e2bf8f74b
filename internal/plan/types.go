// Package plan implements the dependency-aware task plan engine: draft
// construction, graph validation, human approval, and execution of tasks in
// dependency order through the agent orchestrator.
package plan

import (
	"time"
)

// Status is the lifecycle state of a plan document.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSkipped    TaskStatus = "skipped"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// TaskType classifies what kind of work a task is.
type TaskType string

const (
	TaskTypeResearch      TaskType = "research"
	TaskTypeEdit          TaskType = "edit"
	TaskTypeCreate        TaskType = "create"
	TaskTypeDelete        TaskType = "delete"
	TaskTypeTest          TaskType = "test"
	TaskTypeRefactor      TaskType = "refactor"
	TaskTypeDocumentation TaskType = "documentation"
	TaskTypeConfiguration TaskType = "configuration"
	TaskTypeBuild         TaskType = "build"
	TaskTypeOther         TaskType = "other"
)

// Task is one unit of plan work. Dependencies are task ids within the same
// plan, never pointers, so the graph can be validated and serialized flatly.
type Task struct {
	ID          string     `json:"id"`
	Order       int        `json:"order"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        TaskType   `json:"type"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Complexity  int        `json:"complexity"` // 1-5
	Status      TaskStatus `json:"status"`
	// StatusReason carries the failure or blockage cause.
	StatusReason string     `json:"status_reason,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Document is a full plan with its ordered task list.
type Document struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Context      string     `json:"context,omitempty"`
	Risks        []string   `json:"risks,omitempty"`
	TestStrategy string     `json:"test_strategy,omitempty"`
	TechStack    []string   `json:"tech_stack,omitempty"`
	Tasks        []Task     `json:"tasks"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
}

// Task returns a pointer to the task with the given id, or nil.
func (d *Document) Task(id string) *Task {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// taskIndex builds an id → slice-index lookup.
func (d *Document) taskIndex() map[string]int {
	idx := make(map[string]int, len(d.Tasks))
	for i, t := range d.Tasks {
		idx[t.ID] = i
	}
	return idx
}

// dependents returns ids of tasks directly depending on the given task.
func (d *Document) dependents(taskID string) []string {
	var out []string
	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			if dep == taskID {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}

// Runnable returns every pending task whose dependencies are all satisfied
// (completed or explicitly skipped); sorting is the caller's concern.
func (d *Document) Runnable() []*Task {
	idx := d.taskIndex()
	var out []*Task
	for i := range d.Tasks {
		t := &d.Tasks[i]
		if t.Status != TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			j, ok := idx[dep]
			if !ok || (d.Tasks[j].Status != TaskCompleted && d.Tasks[j].Status != TaskSkipped) {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	return out
}

// Settled reports whether every task is in a terminal state for this run:
// nothing pending or in progress can still make progress.
func (d *Document) Settled() bool {
	return len(d.Runnable()) == 0 && !d.anyInProgress()
}

func (d *Document) anyInProgress() bool {
	for _, t := range d.Tasks {
		if t.Status == TaskInProgress {
			return true
		}
	}
	return false
}

// AllDone reports whether every task finished cleanly (completed or skipped).
func (d *Document) AllDone() bool {
	for _, t := range d.Tasks {
		if t.Status != TaskCompleted && t.Status != TaskSkipped {
			return false
		}
	}
	return true
}

// Progress returns completed and total task counts.
func (d *Document) Progress() (done, total int) {
	for _, t := range d.Tasks {
		if t.Status == TaskCompleted || t.Status == TaskSkipped {
			done++
		}
	}
	return done, len(d.Tasks)
}
