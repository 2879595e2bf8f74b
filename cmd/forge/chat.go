// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"planforge/cmd/forge/ui"
	"planforge/internal/agent"
	"planforge/internal/approval"
	"planforge/internal/config"
	"planforge/internal/events"
	"planforge/internal/logging"
	"planforge/internal/perception"
	"planforge/internal/plan"
	"planforge/internal/store"
	"planforge/internal/tools"
	"planforge/internal/tools/core"
	"planforge/internal/tools/planning"
	"planforge/internal/tools/research"
	"planforge/internal/tools/shell"
	"planforge/internal/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

// chatMessage is one rendered transcript entry.
type chatMessage struct {
	role    string // user, assistant, tool, error, status
	content string
	time    time.Time
}

// Messages for tea updates.
type (
	turnDoneMsg struct {
		text string
		err  error
	}
	turnErrMsg struct{ err error }
	toolCallMsg     struct{ name string }
	approvalMsg     *approval.Request
	planEventMsg    events.Event
	planResumedMsg  struct{ doc *plan.Document }
	planFinishedMsg struct {
		doc *plan.Document
		err error
	}
)

// backend bundles the wired core components behind the TUI.
type backend struct {
	cfg       *config.Config
	store     *store.Store
	gate      *approval.Gate
	bus       *events.Bus
	engine    *plan.Engine
	orch      *agent.Orchestrator
	session   *types.Session
	toolCalls chan string
	approvals chan *approval.Request

	planEvents  <-chan events.Event
	unsubscribe func()
}

// newBackend wires the full stack for one interactive session.
func newBackend(cfg *config.Config) (*backend, error) {
	st, err := store.New(resolvePath(cfg.Storage.DatabasePath))
	if err != nil {
		return nil, err
	}

	client, err := perception.NewClient(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	session := &types.Session{
		ID:         uuid.NewString(),
		Title:      "chat " + time.Now().Format("2006-01-02 15:04"),
		WorkingDir: workspaceFlag,
		Model:      cfg.LLM.Model,
		Mode:       types.ModeChat,
	}
	if err := st.CreateSession(session); err != nil {
		st.Close()
		return nil, err
	}

	bus := events.NewBus()
	gate := approval.NewGate(session.ID,
		approval.WithTimeout(cfg.GetApprovalTimeout()),
		approval.WithAutoApprove(cfg.Approval.AutoApprove),
		approval.WithBus(bus),
	)

	registry := tools.NewRegistry()
	if err := core.RegisterAll(registry); err != nil {
		st.Close()
		return nil, err
	}
	if err := shell.RegisterAll(registry); err != nil {
		st.Close()
		return nil, err
	}
	if err := research.RegisterAll(registry); err != nil {
		st.Close()
		return nil, err
	}

	orch := agent.New(client, registry, st, session, agent.Options{
		MaxToolIterations: cfg.Execution.MaxToolIterations,
		ToolTimeout:       cfg.GetToolTimeout(),
		WorkingDir:        workspaceFlag,
		AutoApprove:       cfg.Approval.AutoApprove,
		Env:               cfg.Execution.Environment,
		Retry:             cfg.RetryPolicy(),
	})
	orch.SetGate(gate)

	snapshots := plan.NewSnapshotter(resolvePath(cfg.Storage.SnapshotDir))
	engine := plan.NewEngine(session.ID, st, snapshots, agent.NewPlanRunner(orch), bus)

	if err := planning.RegisterAll(registry, engine); err != nil {
		st.Close()
		return nil, err
	}

	b := &backend{
		cfg:       cfg,
		store:     st,
		gate:      gate,
		bus:       bus,
		engine:    engine,
		orch:      orch,
		session:   session,
		toolCalls: make(chan string, 32),
		approvals: make(chan *approval.Request, 1),
	}
	b.planEvents, b.unsubscribe = bus.Subscribe()

	gate.SetCallback(func(req *approval.Request) {
		select {
		case b.approvals <- req:
		default:
			// A stale undelivered request; the gate allows one pending
			// request at a time so this slot is effectively free.
		}
	})
	orch.OnToolCall(func(name string, input map[string]any) {
		select {
		case b.toolCalls <- name:
		default:
		}
	})

	return b, nil
}

// shortID abbreviates a UUID for status lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolvePath anchors relative storage paths at the workspace.
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspaceFlag, path)
}

func (b *backend) close() {
	b.gate.Shutdown()
	b.unsubscribe()
	b.bus.Close()
	b.store.Close()
}

// chatModel is the main model for the interactive chat interface.
type chatModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	history   []chatMessage
	isLoading bool
	width     int
	height    int
	ready     bool

	// pending approval overlay
	pendingApproval *approval.Request

	backend *backend
	cancel  context.CancelFunc
}

func initChat(b *backend) chatModel {
	ucfg, err := config.LoadUserConfig(config.DefaultUserConfigPath())
	if err != nil {
		ucfg = config.DefaultUserConfig()
	}
	styles := ui.DefaultStyles()
	switch ucfg.Theme {
	case "light":
		styles = ui.NewStyles(ui.LightTheme())
	case "dark":
		styles = ui.NewStyles(ui.DarkTheme())
	}

	ti := textinput.New()
	ti.Placeholder = "Ask forge anything... (/plan to switch modes, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 8192
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	} else {
		renderer, _ = glamour.NewTermRenderer(glamour.WithStylePath("light"), glamour.WithWordWrap(80))
	}

	if ucfg.DefaultMode == "plan" {
		b.orch.SetMode(types.ModePlan)
	}

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		backend:   b,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForApproval(),
		m.waitForToolCall(),
		m.waitForPlanEvent(),
		m.resumePlan(),
	)
}

// waitForApproval bridges the gate callback channel into tea messages.
func (m chatModel) waitForApproval() tea.Cmd {
	return func() tea.Msg {
		req, ok := <-m.backend.approvals
		if !ok {
			return nil
		}
		return approvalMsg(req)
	}
}

func (m chatModel) waitForToolCall() tea.Cmd {
	return func() tea.Msg {
		name, ok := <-m.backend.toolCalls
		if !ok {
			return nil
		}
		return toolCallMsg{name: name}
	}
}

func (m chatModel) waitForPlanEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.backend.planEvents
		if !ok {
			return nil
		}
		return planEventMsg(event)
	}
}

// resumePlan continues a plan left in progress by a previous process.
func (m chatModel) resumePlan() tea.Cmd {
	return func() tea.Msg {
		doc, err := m.backend.engine.Resume(context.Background())
		if err != nil {
			logging.Plan("resume failed: %v", err)
			return nil
		}
		if doc == nil {
			return nil
		}
		return planResumedMsg{doc: doc}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Approval overlay swallows all keys until a decision is made.
		if m.pendingApproval != nil {
			return m.handleApprovalKey(msg)
		}
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			m.backend.gate.Shutdown()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.isLoading && m.cancel != nil {
				m.cancel()
				m.appendStatus("turn cancelled")
				return m, nil
			}
		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textinput.Width = msg.Width - 4
		headerHeight := 2
		footerHeight := 4
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight - footerHeight
		m.ready = true
		m.refreshViewport()

	case turnDoneMsg:
		m.isLoading = false
		m.cancel = nil
		if msg.text != "" {
			m.appendMessage("assistant", msg.text)
		}
		if msg.err != nil {
			m.appendMessage("error", msg.err.Error())
		}
		return m, nil

	case turnErrMsg:
		m.isLoading = false
		m.cancel = nil
		m.appendMessage("error", msg.err.Error())
		return m, nil

	case toolCallMsg:
		m.appendMessage("tool", "→ "+msg.name)
		return m, m.waitForToolCall()

	case approvalMsg:
		m.pendingApproval = msg
		m.refreshViewport()
		return m, m.waitForApproval()

	case planEventMsg:
		switch payload := msg.Payload.(type) {
		case events.TaskStatus:
			line := fmt.Sprintf("task %s: %s", payload.TaskID, payload.Status)
			if payload.Reason != "" {
				line += " (" + payload.Reason + ")"
			}
			m.appendStatus(line)
		case events.PlanStatus:
			m.appendStatus(fmt.Sprintf("plan %s: %s", shortID(payload.PlanID), payload.Status))
		}
		return m, m.waitForPlanEvent()

	case planResumedMsg:
		m.appendStatus(fmt.Sprintf("resumed plan %q (%s)", msg.doc.Title, msg.doc.Status))
		return m, nil

	case planFinishedMsg:
		m.isLoading = false
		m.cancel = nil
		if msg.err != nil {
			m.appendMessage("error", "plan execution: "+msg.err.Error())
		} else if msg.doc != nil {
			done, total := msg.doc.Progress()
			m.appendStatus(fmt.Sprintf("plan %q finished: %s (%d/%d tasks)", msg.doc.Title, msg.doc.Status, done, total))
		}
		return m, nil

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// handleApprovalKey resolves the pending approval overlay.
func (m chatModel) handleApprovalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		m.pendingApproval.Respond(approval.Response{Approved: true})
		m.appendStatus("approved: " + m.pendingApproval.ToolName)
		m.pendingApproval = nil
	case "n", "esc":
		m.pendingApproval.Respond(approval.Response{Approved: false, Reason: "denied by user"})
		m.appendStatus("denied: " + m.pendingApproval.ToolName)
		m.pendingApproval = nil
	case "ctrl+c":
		m.pendingApproval.Respond(approval.Response{Approved: false, Reason: "shutting down"})
		m.backend.gate.Shutdown()
		return m, tea.Quit
	}
	m.refreshViewport()
	return m, nil
}

// handleSubmit dispatches the typed input: slash command or chat turn.
func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}
	m.textinput.Reset()

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.appendMessage("user", input)
	m.isLoading = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		text, err := m.backend.orch.RunTurn(ctx, input)
		if err != nil && text == "" {
			return turnErrMsg{err: err}
		}
		// Partial output before a failure is still worth showing.
		return turnDoneMsg{text: text, err: err}
	})
}

// handleCommand processes slash commands.
func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd := fields[0]
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch cmd {
	case "/plan":
		m.backend.orch.SetMode(types.ModePlan)
		m.appendStatus("plan mode: investigation only, writes disabled until a plan is approved")
	case "/chat":
		m.backend.orch.SetMode(types.ModeChat)
		m.appendStatus("chat mode")
	case "/approve":
		return m.approveActivePlan()
	case "/reject":
		return m.rejectActivePlan(arg)
	case "/status":
		m.appendStatus(m.statusLine())
	case "/help":
		m.appendStatus("commands: /plan /chat /approve /reject [reason] /status /quit")
	case "/quit", "/exit":
		m.backend.gate.Shutdown()
		return m, tea.Quit
	default:
		m.appendMessage("error", "unknown command "+cmd+" (try /help)")
	}
	m.refreshViewport()
	return m, nil
}

func (m chatModel) approveActivePlan() (tea.Model, tea.Cmd) {
	doc, err := m.backend.engine.Active()
	if err != nil || doc == nil || doc.Status != plan.StatusPendingApproval {
		m.appendMessage("error", "no plan is awaiting approval")
		m.refreshViewport()
		return m, nil
	}

	m.appendStatus(fmt.Sprintf("plan %q approved, executing %d tasks", doc.Title, len(doc.Tasks)))
	m.isLoading = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.backend.orch.SetActivePlan(doc.ID)
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		final, err := m.backend.engine.Approve(ctx, doc.ID)
		m.backend.orch.SetActivePlan("")
		return planFinishedMsg{doc: final, err: err}
	})
}

func (m chatModel) rejectActivePlan(reason string) (tea.Model, tea.Cmd) {
	doc, err := m.backend.engine.Active()
	if err != nil || doc == nil || doc.Status != plan.StatusPendingApproval {
		m.appendMessage("error", "no plan is awaiting approval")
		m.refreshViewport()
		return m, nil
	}
	if _, err := m.backend.engine.Reject(doc.ID, reason); err != nil {
		m.appendMessage("error", err.Error())
	} else {
		m.appendStatus(fmt.Sprintf("plan %q rejected", doc.Title))
	}
	m.refreshViewport()
	return m, nil
}

func (m chatModel) statusLine() string {
	sess := m.backend.session
	return fmt.Sprintf("mode=%s model=%s tokens=%d/%d cost=$%.4f",
		m.backend.orch.Mode(), sess.Model, sess.InputTokens, sess.OutputTokens, sess.Cost)
}

func (m *chatModel) appendMessage(role, content string) {
	m.history = append(m.history, chatMessage{role: role, content: content, time: time.Now()})
	m.refreshViewport()
}

func (m *chatModel) appendStatus(content string) {
	m.appendMessage("status", content)
}

func (m *chatModel) refreshViewport() {
	var b strings.Builder
	for _, msg := range m.history {
		switch msg.role {
		case "user":
			b.WriteString(m.styles.UserMsg.Render("you") + " " + msg.content + "\n")
		case "assistant":
			rendered := msg.content
			if m.renderer != nil {
				if out, err := m.renderer.Render(msg.content); err == nil {
					rendered = out
				}
			}
			b.WriteString(m.styles.Assistant.Render(rendered) + "\n")
		case "tool":
			b.WriteString(m.styles.ToolCall.Render(msg.content) + "\n")
		case "error":
			b.WriteString(m.styles.ErrorMsg.Render("error: "+msg.content) + "\n")
		case "status":
			b.WriteString(m.styles.Status.Render(msg.content) + "\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "starting forge..."
	}

	var b strings.Builder

	mode := string(m.backend.orch.Mode())
	badge := m.styles.ModeBadge.Render("[" + mode + "]")
	b.WriteString(badge + " " + m.styles.Status.Render(m.statusLine()) + "\n\n")

	b.WriteString(m.viewport.View() + "\n")

	if m.pendingApproval != nil {
		req := m.pendingApproval
		title := m.styles.ApprovalTitle.Render("approval required: " + req.ToolName)
		desc := req.Description
		caps := "capabilities: " + strings.Join(req.Capabilities, ", ")
		hint := m.styles.ApprovalHint.Render("[y] approve   [n] deny")
		b.WriteString(m.styles.ApprovalBox.Render(title+"\n"+desc+"\n"+caps+"\n"+hint) + "\n")
	} else if m.isLoading {
		b.WriteString(m.spinner.View() + " thinking...\n")
	}

	b.WriteString(m.textinput.View())
	return b.String()
}

// runChat wires the backend and runs the TUI until exit.
func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.InitializeAudit(workspaceFlag); err != nil {
		return err
	}

	b, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	logging.Session("interactive session started: %s", b.session.ID)
	p := tea.NewProgram(initChat(b), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
