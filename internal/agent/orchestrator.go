// Package agent implements the turn orchestrator: the loop that carries a
// user message through provider calls and tool executions until the model
// stops requesting tools or the iteration budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planforge/internal/approval"
	"planforge/internal/logging"
	"planforge/internal/retry"
	"planforge/internal/tools"
	"planforge/internal/types"
)

// ErrIterationLimit is returned when a single turn exceeds the configured
// number of provider round-trips. The transcript up to that point is
// persisted; the turn just stops asking for more tools.
var ErrIterationLimit = errors.New("tool iteration limit exceeded")

// Store is the transcript persistence the orchestrator needs. *store.Store
// satisfies it.
type Store interface {
	SaveMessage(m *types.Message) error
	GetMessages(sessionID string) ([]*types.Message, error)
	UpdateSession(sess *types.Session) error
}

// Options configures an Orchestrator.
type Options struct {
	MaxToolIterations int
	ToolTimeout       time.Duration
	SystemPrompt      string
	WorkingDir        string
	AutoApprove       bool
	// Env is extra environment for shell tool executions.
	Env   map[string]string
	Retry retry.Policy
}

// Orchestrator drives one session's turns.
type Orchestrator struct {
	client   types.LLMClient
	registry *tools.Registry
	store    Store
	session  *types.Session
	opts     Options

	// mode gates which tools the registry allows this turn.
	mode types.Mode

	// gate handles approval-requiring tool calls; nil means rely on
	// AutoApprove.
	gate *approval.Gate

	// activePlanID tags tool executions run on behalf of a plan task.
	activePlanID string

	// onText receives assistant text as it is produced, for display.
	// Optional.
	onText func(string)

	// onToolCall is notified before each tool execution. Optional.
	onToolCall func(name string, input map[string]any)
}

// New creates an orchestrator for one session.
func New(client types.LLMClient, registry *tools.Registry, store Store, session *types.Session, opts Options) *Orchestrator {
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = 10
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 60 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	mode := session.Mode
	if mode == "" {
		mode = types.ModeChat
	}
	return &Orchestrator{
		client:   client,
		registry: registry,
		store:    store,
		session:  session,
		opts:     opts,
		mode:     mode,
	}
}

// SetMode switches the interaction mode for subsequent turns.
func (o *Orchestrator) SetMode(mode types.Mode) {
	o.mode = mode
	o.session.Mode = mode
	if err := o.store.UpdateSession(o.session); err != nil {
		logging.Agent("failed to persist mode change: %v", err)
	}
}

// Mode returns the current interaction mode.
func (o *Orchestrator) Mode() types.Mode { return o.mode }

// Session returns the session this orchestrator drives.
func (o *Orchestrator) Session() *types.Session { return o.session }

// SetGate wires the approval gate passed into tool execution contexts.
func (o *Orchestrator) SetGate(gate *approval.Gate) { o.gate = gate }

// SetActivePlan tags subsequent turns as executing the given plan. Empty
// clears the tag.
func (o *Orchestrator) SetActivePlan(planID string) { o.activePlanID = planID }

// OnText registers a callback receiving assistant text per provider
// response.
func (o *Orchestrator) OnText(fn func(string)) { o.onText = fn }

// OnToolCall registers a callback fired before each tool execution.
func (o *Orchestrator) OnToolCall(fn func(name string, input map[string]any)) { o.onToolCall = fn }

// RunTurn processes one user message to completion. It returns the final
// assistant text; every intermediate message is persisted as it happens so
// a crash preserves the transcript.
func (o *Orchestrator) RunTurn(ctx context.Context, userInput string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "RunTurn")
	defer timer.Stop()

	userMsg := &types.Message{
		ID:        uuid.NewString(),
		SessionID: o.session.ID,
		Role:      types.RoleUser,
		Content:   userInput,
		CreatedAt: time.Now(),
	}
	if err := o.store.SaveMessage(userMsg); err != nil {
		return "", fmt.Errorf("failed to persist user message: %w", err)
	}

	history, err := o.history()
	if err != nil {
		return "", err
	}

	systemPrompt := o.opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SystemPromptFor(o.mode, o.opts.WorkingDir)
	}

	definitions := o.registry.Definitions()
	var finalText string

	for iteration := 1; ; iteration++ {
		if iteration > o.opts.MaxToolIterations {
			logging.Agent("turn aborted: %d iterations exhausted (session=%s)", o.opts.MaxToolIterations, o.session.ID)
			return finalText, fmt.Errorf("%w (%d round-trips)", ErrIterationLimit, o.opts.MaxToolIterations)
		}

		var resp *types.LLMToolResponse
		err := o.opts.Retry.Do(ctx, "provider call", func() error {
			var callErr error
			resp, callErr = o.client.CompleteWithTools(ctx, systemPrompt, history, definitions)
			return callErr
		})
		if err != nil {
			return finalText, fmt.Errorf("provider request failed: %w", err)
		}

		cost := CostFor(o.session.Model, resp.Usage)
		o.session.InputTokens += resp.Usage.InputTokens
		o.session.OutputTokens += resp.Usage.OutputTokens
		o.session.Cost += cost
		if err := o.store.UpdateSession(o.session); err != nil {
			logging.Agent("failed to persist session accounting: %v", err)
		}

		assistantMsg := &types.Message{
			ID:        uuid.NewString(),
			SessionID: o.session.ID,
			Role:      types.RoleAssistant,
			Content:   resp.Text,
			Usage:     resp.Usage,
			Cost:      cost,
			CreatedAt: time.Now(),
		}
		if len(resp.ToolCalls) > 0 {
			encoded, _ := json.Marshal(resp.ToolCalls)
			assistantMsg.ToolCalls = string(encoded)
		}
		if err := o.store.SaveMessage(assistantMsg); err != nil {
			return finalText, fmt.Errorf("failed to persist assistant message: %w", err)
		}

		if resp.Text != "" {
			finalText = resp.Text
			if o.onText != nil {
				o.onText(resp.Text)
			}
		}

		history = append(history, types.ChatMessage{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			logging.AgentDebug("turn complete after %d iterations (session=%s)", iteration, o.session.ID)
			return finalText, nil
		}

		// Execute tool calls strictly in provider order.
		for _, call := range resp.ToolCalls {
			result := o.executeToolCall(ctx, call)
			history = append(history, result)
		}
	}
}

// executeToolCall runs one requested tool and persists its result. Tool
// failures become error results fed back to the model, never turn failures.
func (o *Orchestrator) executeToolCall(ctx context.Context, call types.ToolCall) types.ChatMessage {
	if o.onToolCall != nil {
		o.onToolCall(call.Name, call.Input)
	}
	logging.Agent("tool call: %s (session=%s)", call.Name, o.session.ID)

	ectx := &tools.ExecutionContext{
		SessionID:   o.session.ID,
		WorkingDir:  o.opts.WorkingDir,
		Env:         o.opts.Env,
		AutoApprove: o.opts.AutoApprove,
		Timeout:     o.opts.ToolTimeout,
		Mode:        o.mode,
		PlanID:      o.activePlanID,
		Gate:        o.gate,
	}

	output, err := o.registry.Execute(ctx, call.Name, call.Input, ectx)

	msg := &types.Message{
		ID:        uuid.NewString(),
		SessionID: o.session.ID,
		Role:      types.RoleToolResult,
		ToolUseID: call.ID,
		ToolName:  call.Name,
		CreatedAt: time.Now(),
	}
	if err != nil {
		msg.Content = err.Error()
		msg.IsError = true
	} else {
		msg.Content = output
	}
	if saveErr := o.store.SaveMessage(msg); saveErr != nil {
		logging.Agent("failed to persist tool result: %v", saveErr)
	}

	return types.ChatMessage{
		Role:      "tool_result",
		Content:   msg.Content,
		ToolUseID: call.ID,
		IsError:   msg.IsError,
	}
}

// history converts the persisted transcript into provider-facing messages.
func (o *Orchestrator) history() ([]types.ChatMessage, error) {
	msgs, err := o.store.GetMessages(o.session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	out := make([]types.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleAssistant:
			cm := types.ChatMessage{Role: "assistant", Content: m.Content}
			if m.ToolCalls != "" {
				if err := json.Unmarshal([]byte(m.ToolCalls), &cm.ToolCalls); err != nil {
					logging.Agent("dropping corrupt tool_calls on message %s: %v", m.ID, err)
				}
			}
			out = append(out, cm)
		case types.RoleToolResult:
			out = append(out, types.ChatMessage{
				Role:      "tool_result",
				Content:   m.Content,
				ToolUseID: m.ToolUseID,
				IsError:   m.IsError,
			})
		case types.RoleUser:
			out = append(out, types.ChatMessage{Role: "user", Content: m.Content})
		}
		// System messages are informational and stay out of provider
		// history.
	}
	return out, nil
}
