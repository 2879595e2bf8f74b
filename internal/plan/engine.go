package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"planforge/internal/events"
	"planforge/internal/logging"
)

// Engine lifecycle errors.
var (
	// ErrPlanNotFound is returned for an unknown plan id.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidTransition is returned for a lifecycle operation applied in
	// the wrong status.
	ErrInvalidTransition = errors.New("invalid plan status transition")

	// ErrPendingPlanExists is returned when finalizing while another plan is
	// already awaiting approval for the session.
	ErrPendingPlanExists = errors.New("another plan is already pending approval")

	// ErrExecutionInProgress is returned when execution is requested while
	// the engine is already driving a plan.
	ErrExecutionInProgress = errors.New("plan execution already in progress")
)

// Store is the persistence the engine requires. A completed SavePlan must be
// durable before the engine proceeds to the next transition.
type Store interface {
	SavePlan(d *Document) error
	GetPlan(id string) (*Document, error)
	ListPlansBySession(sessionID string) ([]*Document, error)
}

// TurnRunner executes one task as a synthetic agent turn. The runner is
// expected to use an unrestricted (chat-mode) execution context: plan-mode
// restrictions apply to plan review, not plan execution.
type TurnRunner interface {
	RunTask(ctx context.Context, sessionID, prompt string) (string, error)
}

// Engine owns the plan lifecycle for one session.
type Engine struct {
	mu        sync.Mutex
	sessionID string
	store     Store
	snapshots *Snapshotter
	runner    TurnRunner
	bus       *events.Bus

	// executing is the per-engine re-entrancy token: only one plan may be
	// actively executing per session.
	executing bool
}

// NewEngine creates a plan engine for one session.
func NewEngine(sessionID string, store Store, snapshots *Snapshotter, runner TurnRunner, bus *events.Bus) *Engine {
	return &Engine{
		sessionID: sessionID,
		store:     store,
		snapshots: snapshots,
		runner:    runner,
		bus:       bus,
	}
}

// CreateDraft starts a new draft plan for the session.
func (e *Engine) CreateDraft(title, description, planContext string) (*Document, error) {
	now := time.Now()
	d := &Document{
		ID:          uuid.NewString(),
		SessionID:   e.sessionID,
		Title:       title,
		Description: description,
		Context:     planContext,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.persist(d); err != nil {
		return nil, err
	}
	logging.Plan("draft created: plan=%s title=%q", d.ID, title)
	return d, nil
}

// AddTask appends a task to a draft plan. The task id is assigned when empty;
// order defaults to the end of the list.
func (e *Engine) AddTask(planID string, task Task) (*Task, error) {
	d, err := e.load(planID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusDraft {
		return nil, fmt.Errorf("%w: cannot add tasks in status %s", ErrInvalidTransition, d.Status)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Order == 0 {
		task.Order = len(d.Tasks) + 1
	}
	if task.Complexity < 1 {
		task.Complexity = 1
	}
	if task.Complexity > 5 {
		task.Complexity = 5
	}
	if task.Type == "" {
		task.Type = TaskTypeOther
	}
	task.Status = TaskPending

	d.Tasks = append(d.Tasks, task)
	d.UpdatedAt = time.Now()
	if err := e.persist(d); err != nil {
		return nil, err
	}
	return d.Task(task.ID), nil
}

// Finalize validates the task graph and moves the draft to PendingApproval.
// Only one plan may be awaiting approval per session.
func (e *Engine) Finalize(planID string) (*Document, error) {
	d, err := e.load(planID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusDraft {
		return nil, fmt.Errorf("%w: finalize requires draft, got %s", ErrInvalidTransition, d.Status)
	}

	if err := Validate(d); err != nil {
		return nil, err
	}

	existing, err := e.store.ListPlansBySession(e.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session plans: %w", err)
	}
	for _, p := range existing {
		if p.ID != d.ID && p.Status == StatusPendingApproval {
			return nil, fmt.Errorf("%w: %s", ErrPendingPlanExists, p.ID)
		}
	}

	e.transitionPlan(d, StatusPendingApproval)
	if err := e.persist(d); err != nil {
		return nil, err
	}
	logging.Plan("finalized: plan=%s tasks=%d", d.ID, len(d.Tasks))
	return d, nil
}

// Approve moves a pending plan to Approved and immediately InProgress, then
// starts execution. The two transitions are applied atomically: a plan is
// never observable as Approved-but-idle.
func (e *Engine) Approve(ctx context.Context, planID string) (*Document, error) {
	d, err := e.load(planID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPendingApproval {
		return nil, fmt.Errorf("%w: approve requires pending_approval, got %s", ErrInvalidTransition, d.Status)
	}

	now := time.Now()
	d.ApprovedAt = &now
	d.Status = StatusApproved
	e.transitionPlan(d, StatusInProgress)
	if err := e.persist(d); err != nil {
		return nil, err
	}
	logging.Plan("approved: plan=%s", d.ID)

	if err := e.Execute(ctx, d.ID); err != nil {
		return d, err
	}
	return e.load(d.ID)
}

// Reject moves a pending plan to Rejected. No tasks run.
func (e *Engine) Reject(planID, reason string) (*Document, error) {
	d, err := e.load(planID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPendingApproval {
		return nil, fmt.Errorf("%w: reject requires pending_approval, got %s", ErrInvalidTransition, d.Status)
	}
	e.transitionPlan(d, StatusRejected)
	if reason != "" {
		d.Description = d.Description + "\n\nRejected: " + reason
	}
	if err := e.persist(d); err != nil {
		return nil, err
	}
	logging.Plan("rejected: plan=%s reason=%q", d.ID, reason)
	return d, nil
}

// Cancel moves a pending plan to Cancelled. Unlike Reject it records no
// reason; it is the "never mind" path.
func (e *Engine) Cancel(planID string) (*Document, error) {
	d, err := e.load(planID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPendingApproval && d.Status != StatusDraft {
		return nil, fmt.Errorf("%w: cancel requires draft or pending_approval, got %s", ErrInvalidTransition, d.Status)
	}
	e.transitionPlan(d, StatusCancelled)
	if err := e.persist(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Execute drives an in-progress plan until no task can make further
// progress. Re-entrant calls fail: only one execution per engine.
func (e *Engine) Execute(ctx context.Context, planID string) error {
	e.mu.Lock()
	if e.executing {
		e.mu.Unlock()
		return ErrExecutionInProgress
	}
	e.executing = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.executing = false
		e.mu.Unlock()
	}()

	d, err := e.load(planID)
	if err != nil {
		return err
	}
	if d.Status != StatusInProgress {
		return fmt.Errorf("%w: execute requires in_progress, got %s", ErrInvalidTransition, d.Status)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		runnable := d.Runnable()
		if len(runnable) == 0 {
			break
		}
		// Lowest order first keeps execution deterministic.
		sort.Slice(runnable, func(i, j int) bool { return runnable[i].Order < runnable[j].Order })
		task := runnable[0]

		e.transitionTask(d, task, TaskInProgress, "")
		if err := e.persist(d); err != nil {
			return err
		}

		output, runErr := e.runner.RunTask(ctx, e.sessionID, taskPrompt(d, task))
		if runErr != nil {
			logging.Plan("task failed: plan=%s task=%s err=%v", d.ID, task.ID, runErr)
			e.transitionTask(d, task, TaskFailed, runErr.Error())
			e.cascadeBlocked(d, task.ID, fmt.Sprintf("dependency %s failed", task.ID))
			if err := e.persist(d); err != nil {
				return err
			}
			// Independent branches keep running.
			continue
		}

		now := time.Now()
		task.CompletedAt = &now
		task.Notes = truncateNotes(output)
		e.transitionTask(d, task, TaskCompleted, "")
		if err := e.persist(d); err != nil {
			return err
		}
	}

	if d.AllDone() {
		e.transitionPlan(d, StatusCompleted)
		logging.Plan("completed: plan=%s", d.ID)
	} else {
		// Failed or blocked tasks remain; leave the plan in progress so a
		// human can intervene.
		logging.Plan("stalled: plan=%s", d.ID)
	}
	return e.persist(d)
}

// Resume reloads the session's active plan after a restart and continues
// execution. A task found InProgress is reset to Pending and re-attempted:
// tool side effects are not idempotent, so planforge re-runs rather than
// assuming completion.
func (e *Engine) Resume(ctx context.Context) (*Document, error) {
	plans, err := e.store.ListPlansBySession(e.sessionID)
	if err != nil {
		return nil, err
	}

	var active *Document
	for _, p := range plans {
		if p.Status == StatusInProgress {
			active = p
			break
		}
	}
	if active == nil {
		return nil, nil
	}

	reset := false
	for i := range active.Tasks {
		if active.Tasks[i].Status == TaskInProgress {
			e.transitionTask(active, &active.Tasks[i], TaskPending, "")
			reset = true
		}
	}
	if reset {
		if err := e.persist(active); err != nil {
			return nil, err
		}
	}

	if err := e.Execute(ctx, active.ID); err != nil {
		return active, err
	}
	return e.load(active.ID)
}

// SkipTask marks a pending or blocked task skipped so the rest of the plan
// can finish without it.
func (e *Engine) SkipTask(planID, taskID, reason string) (*Document, error) {
	d, err := e.load(planID)
	if err != nil {
		return nil, err
	}
	task := d.Task(taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: task %s", ErrPlanNotFound, taskID)
	}
	if task.Status != TaskPending && task.Status != TaskBlocked && task.Status != TaskFailed {
		return nil, fmt.Errorf("%w: cannot skip task in status %s", ErrInvalidTransition, task.Status)
	}
	e.transitionTask(d, task, TaskSkipped, reason)
	e.unblockSettled(d)
	if err := e.persist(d); err != nil {
		return nil, err
	}
	return d, nil
}

// unblockSettled returns blocked tasks to pending once none of their
// transitive dependencies remain failed or blocked. Called after a skip so
// the dependents of the skipped task can run again.
func (e *Engine) unblockSettled(d *Document) {
	for changed := true; changed; {
		changed = false
		for i := range d.Tasks {
			t := &d.Tasks[i]
			if t.Status != TaskBlocked {
				continue
			}
			clear := true
			for _, dep := range t.DependsOn {
				dt := d.Task(dep)
				if dt == nil {
					continue
				}
				if dt.Status == TaskFailed || dt.Status == TaskBlocked {
					clear = false
					break
				}
			}
			if clear {
				e.transitionTask(d, t, TaskPending, "")
				changed = true
			}
		}
	}
}

// Get returns a plan by id.
func (e *Engine) Get(planID string) (*Document, error) {
	return e.load(planID)
}

// Active returns the session's plan awaiting approval or executing, or nil.
func (e *Engine) Active() (*Document, error) {
	plans, err := e.store.ListPlansBySession(e.sessionID)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		switch p.Status {
		case StatusDraft, StatusPendingApproval, StatusInProgress:
			return p, nil
		}
	}
	return nil, nil
}

func (e *Engine) load(planID string) (*Document, error) {
	d, err := e.store.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return d, nil
}

// persist saves to the durable store first, then mirrors the snapshot. The
// store write completing is what permits the next transition.
func (e *Engine) persist(d *Document) error {
	d.UpdatedAt = time.Now()
	if err := e.store.SavePlan(d); err != nil {
		return fmt.Errorf("failed to persist plan: %w", err)
	}
	if e.snapshots != nil {
		if err := e.snapshots.Save(d); err != nil {
			// Snapshot failure is not fatal: the durable store is authoritative.
			logging.Plan("snapshot write failed for plan %s: %v", d.ID, err)
		}
	}
	return nil
}

func (e *Engine) transitionPlan(d *Document, to Status) {
	d.Status = to
	logging.Audit(logging.AuditEvent{
		Type:      logging.AuditPlanTransition,
		SessionID: d.SessionID,
		Subject:   d.ID,
		Detail:    string(to),
	})
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:      events.TypePlanStatusChanged,
			SessionID: d.SessionID,
			Payload:   events.PlanStatus{PlanID: d.ID, Status: string(to)},
		})
	}
}

func (e *Engine) transitionTask(d *Document, task *Task, to TaskStatus, reason string) {
	task.Status = to
	task.StatusReason = reason
	logging.Audit(logging.AuditEvent{
		Type:      logging.AuditTaskTransition,
		SessionID: d.SessionID,
		Subject:   task.ID,
		Detail:    string(to),
	})
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:      events.TypeTaskStatusChanged,
			SessionID: d.SessionID,
			Payload:   events.TaskStatus{PlanID: d.ID, TaskID: task.ID, Status: string(to), Reason: reason},
		})
	}
}

// cascadeBlocked marks every task transitively depending on failedID blocked.
func (e *Engine) cascadeBlocked(d *Document, failedID, reason string) {
	queue := []string{failedID}
	seen := map[string]bool{failedID: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, depID := range d.dependents(id) {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			t := d.Task(depID)
			if t != nil && (t.Status == TaskPending || t.Status == TaskInProgress) {
				e.transitionTask(d, t, TaskBlocked, reason)
			}
			queue = append(queue, depID)
		}
	}
}

// taskPrompt renders one task as a synthetic agent turn.
func taskPrompt(d *Document, task *Task) string {
	prompt := fmt.Sprintf("You are executing task %d of the approved plan %q.\n\nTask: %s\n%s",
		task.Order, d.Title, task.Title, task.Description)
	if d.Context != "" {
		prompt += "\n\nPlan context:\n" + d.Context
	}
	if d.TestStrategy != "" {
		prompt += "\n\nTest strategy:\n" + d.TestStrategy
	}
	return prompt
}

const maxTaskNotes = 2000

func truncateNotes(s string) string {
	if len(s) <= maxTaskNotes {
		return s
	}
	return s[:maxTaskNotes] + "\n...[truncated]"
}
