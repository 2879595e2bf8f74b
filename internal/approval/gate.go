// Package approval implements the human-in-the-loop gate that suspends a
// tool call until a decision arrives from the presentation layer.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"planforge/internal/events"
	"planforge/internal/logging"
)

// DefaultTimeout is the wait before an unanswered request auto-denies.
const DefaultTimeout = 5 * time.Minute

// TimeoutReason is the denial reason used when no decision arrived in time.
const TimeoutReason = "approval timed out"

var (
	// ErrRequestPending is returned when a second approval is requested
	// while one is still outstanding for the session.
	ErrRequestPending = errors.New("an approval request is already pending")

	// ErrGateClosed is returned for requests made after shutdown.
	ErrGateClosed = errors.New("approval gate is shut down")
)

// Request is one pending approval. It lives for the duration of a single
// tool call and carries a single-fulfillment response slot.
type Request struct {
	ID           string
	SessionID    string
	ToolName     string
	Description  string
	Input        map[string]interface{}
	Capabilities []string
	CreatedAt    time.Time

	respondOnce sync.Once
	response    chan Response
}

// Response is the decision for one request.
type Response struct {
	Approved bool
	Reason   string
}

// Respond fulfills the request. Only the first call wins; later calls are
// ignored and return false.
func (r *Request) Respond(resp Response) bool {
	delivered := false
	r.respondOnce.Do(func() {
		r.response <- resp
		delivered = true
	})
	return delivered
}

// Callback delivers a request to the presentation layer. It must not block:
// the gate waits on the response slot, the UI answers via Respond.
type Callback func(*Request)

// Gate mediates approval for one session.
type Gate struct {
	mu          sync.Mutex
	sessionID   string
	autoApprove bool
	timeout     time.Duration
	callback    Callback
	bus         *events.Bus
	pending     *Request

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout overrides the auto-deny timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithAutoApprove starts the gate in auto-approve.
func WithAutoApprove(b bool) Option {
	return func(g *Gate) { g.autoApprove = b }
}

// WithBus publishes ApprovalRequested events to the bus.
func WithBus(bus *events.Bus) Option {
	return func(g *Gate) { g.bus = bus }
}

// NewGate creates a gate for one session.
func NewGate(sessionID string, opts ...Option) *Gate {
	g := &Gate{
		sessionID: sessionID,
		timeout:   DefaultTimeout,
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetCallback registers the presentation-layer delivery callback.
func (g *Gate) SetCallback(cb Callback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callback = cb
}

// SetAutoApprove toggles auto-approve at runtime.
func (g *Gate) SetAutoApprove(b bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoApprove = b
}

// AutoApprove reports the current auto-approve state.
func (g *Gate) AutoApprove() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.autoApprove
}

// Request suspends until a decision arrives for the described tool call.
// Precedence: auto-approve wins immediately; otherwise the request is
// delivered to the registered callback (if any) and the gate waits on the
// response slot; an unanswered request auto-denies after the timeout.
// Exactly one request may be outstanding per gate.
func (g *Gate) Request(ctx context.Context, toolName, description string, input map[string]interface{}, capabilities []string) (Response, error) {
	select {
	case <-g.shutdown:
		return Response{}, ErrGateClosed
	default:
	}

	g.mu.Lock()
	if g.autoApprove {
		g.mu.Unlock()
		logging.ApprovalDebug("auto-approved %s for session %s", toolName, g.sessionID)
		return Response{Approved: true, Reason: "auto-approve enabled"}, nil
	}
	if g.pending != nil {
		g.mu.Unlock()
		return Response{}, fmt.Errorf("%w: %s", ErrRequestPending, g.pending.ToolName)
	}

	req := &Request{
		ID:           uuid.NewString(),
		SessionID:    g.sessionID,
		ToolName:     toolName,
		Description:  description,
		Input:        input,
		Capabilities: capabilities,
		CreatedAt:    time.Now(),
		response:     make(chan Response, 1),
	}
	g.pending = req
	callback := g.callback
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()
	}()

	logging.Approval("requesting approval: tool=%s session=%s id=%s", toolName, g.sessionID, req.ID)
	logging.Audit(logging.AuditEvent{
		Type:      logging.AuditApprovalRequest,
		SessionID: g.sessionID,
		Subject:   toolName,
		Detail:    description,
	})

	if g.bus != nil {
		g.bus.Publish(events.Event{
			Type:      events.TypeApprovalRequested,
			SessionID: g.sessionID,
			Payload:   req,
		})
	}
	if callback != nil {
		callback(req)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	var resp Response
	select {
	case resp = <-req.response:
	case <-timer.C:
		req.Respond(Response{}) // seal the slot so a late Respond is a no-op
		resp = Response{Approved: false, Reason: TimeoutReason}
	case <-g.shutdown:
		req.Respond(Response{})
		resp = Response{Approved: false, Reason: "shutting down"}
	case <-ctx.Done():
		req.Respond(Response{})
		return Response{}, ctx.Err()
	}

	logging.Approval("approval resolved: tool=%s approved=%v reason=%q", toolName, resp.Approved, resp.Reason)
	logging.Audit(logging.AuditEvent{
		Type:      logging.AuditApprovalResolved,
		SessionID: g.sessionID,
		Subject:   toolName,
		Detail:    resp.Reason,
		Fields:    map[string]interface{}{"approved": resp.Approved},
	})
	return resp, nil
}

// Shutdown resolves any outstanding request to denied and rejects future
// requests. Safe to call more than once.
func (g *Gate) Shutdown() {
	g.shutdownOnce.Do(func() {
		close(g.shutdown)
	})
}
