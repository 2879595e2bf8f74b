package agent

import (
	"context"

	"planforge/internal/types"
)

// PlanRunner adapts the orchestrator to the plan engine's task runner.
// Plan tasks execute as ordinary chat-mode turns: the plan was approved as
// a whole, so individual tool calls inside a task rely on that approval.
type PlanRunner struct {
	orch   *Orchestrator
	planID string
}

// NewPlanRunner wraps an orchestrator for plan execution.
func NewPlanRunner(orch *Orchestrator) *PlanRunner {
	return &PlanRunner{orch: orch}
}

// RunTask executes one plan task as a synthetic turn. The turn runs
// auto-approved: the human already approved the plan containing it.
func (r *PlanRunner) RunTask(ctx context.Context, sessionID, prompt string) (string, error) {
	prevMode := r.orch.Mode()
	prevAuto := r.orch.opts.AutoApprove
	r.orch.SetMode(types.ModeChat)
	r.orch.opts.AutoApprove = true
	defer func() {
		r.orch.SetMode(prevMode)
		r.orch.opts.AutoApprove = prevAuto
	}()

	return r.orch.RunTurn(ctx, prompt)
}
