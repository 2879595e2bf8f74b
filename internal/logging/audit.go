// Audit logging writes structured JSONL events for tool execution and
// approval decisions. The audit trail is append-only and independent of the
// category loggers: it is written even when debug logging is disabled, since
// approval decisions must be reconstructable after the fact.
package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies the kind of audit event.
type AuditEventType string

const (
	AuditToolInvoke       AuditEventType = "tool_invoke"
	AuditToolComplete     AuditEventType = "tool_complete"
	AuditToolError        AuditEventType = "tool_error"
	AuditToolDenied       AuditEventType = "tool_denied"
	AuditApprovalRequest  AuditEventType = "approval_request"
	AuditApprovalResolved AuditEventType = "approval_resolved"
	AuditPlanTransition   AuditEventType = "plan_transition"
	AuditTaskTransition   AuditEventType = "task_transition"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp int64                  `json:"ts"`
	Type      AuditEventType         `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Subject   string                 `json:"subject,omitempty"` // tool name, plan id, task id
	Detail    string                 `json:"detail,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditMu   sync.Mutex
	auditFile *os.File
)

// InitializeAudit opens the audit trail file under the workspace data dir.
func InitializeAudit(workspace string) error {
	dir := filepath.Join(workspace, ".forge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	auditMu.Lock()
	auditFile = f
	auditMu.Unlock()
	return nil
}

// Audit appends one event to the audit trail. A nil audit file (InitializeAudit
// never called, e.g. in tests) makes this a no-op.
func Audit(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.Write(append(line, '\n'))
}

// CloseAudit closes the audit trail file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		_ = auditFile.Close()
		auditFile = nil
	}
}
