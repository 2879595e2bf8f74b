// Package planning registers the plan-management tools the model uses to
// build a plan during plan mode: creating a draft, adding tasks, finalizing
// for human review, and inspecting the current plan.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"planforge/internal/plan"
	"planforge/internal/tools"
)

// Service is the plan lifecycle surface these tools need. *plan.Engine
// satisfies it.
type Service interface {
	CreateDraft(title, description, planContext string) (*plan.Document, error)
	AddTask(planID string, task plan.Task) (*plan.Task, error)
	Finalize(planID string) (*plan.Document, error)
	Get(planID string) (*plan.Document, error)
	Active() (*plan.Document, error)
}

// CreatePlanTool starts a new draft plan.
func CreatePlanTool(svc Service) *tools.Tool {
	return &tools.Tool{
		Name:         "create_plan",
		Description:  "Start a new draft plan. Add tasks with add_plan_task, then call finalize_plan to submit it for human approval.",
		Capabilities: []tools.Capability{tools.CapPlanManagement},
		Schema: tools.ToolSchema{
			Required: []string{"title"},
			Properties: map[string]tools.Property{
				"title": {
					Type:        "string",
					Description: "Short plan title",
				},
				"description": {
					Type:        "string",
					Description: "What the plan accomplishes and why",
				},
				"context": {
					Type:        "string",
					Description: "Relevant findings from investigation: files, constraints, decisions",
				},
			},
		},
		Execute: func(_ context.Context, args map[string]any, _ *tools.ExecutionContext) (string, error) {
			title, _ := args["title"].(string)
			if strings.TrimSpace(title) == "" {
				return "", fmt.Errorf("%w: title is required", tools.ErrInvalidInput)
			}
			description, _ := args["description"].(string)
			planContext, _ := args["context"].(string)

			d, err := svc.CreateDraft(title, description, planContext)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created draft plan %s: %q. Add tasks with add_plan_task.", d.ID, d.Title), nil
		},
	}
}

// AddPlanTaskTool appends a task to a draft plan.
func AddPlanTaskTool(svc Service) *tools.Tool {
	return &tools.Tool{
		Name:         "add_plan_task",
		Description:  "Add a task to a draft plan. depends_on lists ids of tasks that must complete before this one runs.",
		Capabilities: []tools.Capability{tools.CapPlanManagement},
		Schema: tools.ToolSchema{
			Required: []string{"plan_id", "title"},
			Properties: map[string]tools.Property{
				"plan_id": {
					Type:        "string",
					Description: "Draft plan id from create_plan",
				},
				"title": {
					Type:        "string",
					Description: "Short task title",
				},
				"description": {
					Type:        "string",
					Description: "Exactly what to do, specific enough to execute without further questions",
				},
				"type": {
					Type:        "string",
					Description: "Kind of work this task is",
					Enum: []any{"research", "edit", "create", "delete", "test",
						"refactor", "documentation", "configuration", "build", "other"},
				},
				"depends_on": {
					Type:        "array",
					Description: "Ids of tasks this task depends on",
					Items:       &tools.PropertyItems{Type: "string"},
				},
				"complexity": {
					Type:        "integer",
					Description: "Estimated complexity, 1 (trivial) to 5 (hard)",
				},
			},
		},
		Execute: func(_ context.Context, args map[string]any, _ *tools.ExecutionContext) (string, error) {
			planID, _ := args["plan_id"].(string)
			title, _ := args["title"].(string)
			if planID == "" || strings.TrimSpace(title) == "" {
				return "", fmt.Errorf("%w: plan_id and title are required", tools.ErrInvalidInput)
			}

			task := plan.Task{
				Title:       title,
				Description: stringArg(args, "description"),
				Type:        plan.TaskType(stringArg(args, "type")),
				DependsOn:   stringSliceArg(args, "depends_on"),
				Complexity:  intArg(args, "complexity"),
			}

			added, err := svc.AddTask(planID, task)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Added task %s (#%d) %q.", added.ID, added.Order, added.Title), nil
		},
	}
}

// FinalizePlanTool validates the graph and submits the plan for approval.
func FinalizePlanTool(svc Service) *tools.Tool {
	return &tools.Tool{
		Name:         "finalize_plan",
		Description:  "Validate the draft plan's dependency graph and submit it for human approval. Fails on cycles or unknown dependencies.",
		Capabilities: []tools.Capability{tools.CapPlanManagement},
		Schema: tools.ToolSchema{
			Required: []string{"plan_id"},
			Properties: map[string]tools.Property{
				"plan_id": {
					Type:        "string",
					Description: "Draft plan id",
				},
			},
		},
		Execute: func(_ context.Context, args map[string]any, _ *tools.ExecutionContext) (string, error) {
			planID, _ := args["plan_id"].(string)
			if planID == "" {
				return "", fmt.Errorf("%w: plan_id is required", tools.ErrInvalidInput)
			}
			d, err := svc.Finalize(planID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Plan %q (%d tasks) submitted for approval. The user approves with /approve or rejects with /reject.", d.Title, len(d.Tasks)), nil
		},
	}
}

// ViewPlanTool renders a plan with task statuses.
func ViewPlanTool(svc Service) *tools.Tool {
	return &tools.Tool{
		Name:         "view_plan",
		Description:  "Show a plan with its tasks and their statuses. Omit plan_id for the session's active plan.",
		Capabilities: []tools.Capability{tools.CapPlanManagement},
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"plan_id": {
					Type:        "string",
					Description: "Plan id; defaults to the active plan",
				},
			},
		},
		Execute: func(_ context.Context, args map[string]any, _ *tools.ExecutionContext) (string, error) {
			planID, _ := args["plan_id"].(string)

			var d *plan.Document
			var err error
			if planID == "" {
				d, err = svc.Active()
				if err == nil && d == nil {
					return "No active plan for this session.", nil
				}
			} else {
				d, err = svc.Get(planID)
			}
			if err != nil {
				return "", err
			}
			return renderPlan(d), nil
		},
	}
}

// RegisterAll registers all plan management tools with the given registry.
func RegisterAll(registry *tools.Registry, svc Service) error {
	allTools := []*tools.Tool{
		CreatePlanTool(svc),
		AddPlanTaskTool(svc),
		FinalizePlanTool(svc),
		ViewPlanTool(svc),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// renderPlan formats a plan for the model's context window.
func renderPlan(d *plan.Document) string {
	var b strings.Builder
	done, total := d.Progress()
	fmt.Fprintf(&b, "Plan %s [%s] %q (%d/%d tasks done)\n", d.ID, d.Status, d.Title, done, total)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n", d.Description)
	}
	for _, t := range d.Tasks {
		fmt.Fprintf(&b, "  %d. [%s] %s (id=%s", t.Order, t.Status, t.Title, t.ID)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&b, ", depends on %s", strings.Join(t.DependsOn, ", "))
		}
		b.WriteString(")\n")
		if t.StatusReason != "" {
			fmt.Fprintf(&b, "     reason: %s\n", t.StatusReason)
		}
	}
	return b.String()
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// stringSliceArg accepts both []any (decoded JSON) and []string. Models
// sometimes send a JSON-encoded array as a string; that is tolerated too.
func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if json.Unmarshal([]byte(v), &out) == nil {
			return out
		}
		return nil
	default:
		return nil
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
