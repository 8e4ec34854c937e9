package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/inquestlabs/inquest/internal/agentwire"
	"github.com/inquestlabs/inquest/internal/chat"
)

// tuiMessage is a rendered chat entry in the interactive UI.
type tuiMessage struct {
	// Role labels the message origin (user, agent, system).
	Role string
	// Content is the message text displayed in the chat viewport.
	Content string
}

// streamDeltaMsg carries streamed content fragments into the TUI event loop.
type streamDeltaMsg struct {
	// Text is the agent's fragment text.
	Text string
}

// activityMsg carries tool and reasoning activity lines.
type activityMsg struct {
	// Line is the formatted activity entry.
	Line string
}

// runDoneMsg signals a completed turn with the final result.
type runDoneMsg struct {
	// Result is the turn result used to reconcile the display.
	Result *chat.RunResult
}

// runErrorMsg reports an error that occurred during a turn.
type runErrorMsg struct {
	// Err is the underlying run error.
	Err error
}

// tuiModel drives the interactive terminal UI for Inquest.
type tuiModel struct {
	// rt holds the wired runtime components.
	rt *runtime
	// verbose toggles activity detail.
	verbose bool
	// chatMessages holds display-friendly message entries.
	chatMessages []tuiMessage
	// activityLines keeps a rolling log of tool and reasoning activity.
	activityLines []string
	// inputHistory stores prior user inputs for recall.
	inputHistory []string
	// historyIndex tracks the active position in inputHistory.
	historyIndex int
	// historyDraft preserves the in-progress input when browsing history.
	historyDraft string
	// chatView renders the main conversation history.
	chatView viewport.Model
	// activityView renders tool and reasoning activity.
	activityView viewport.Model
	// input collects user input for new turns.
	input textarea.Model
	// markdownRenderer formats agent output when available; nil disables
	// markdown rendering per settings.
	markdownRenderer *glamour.TermRenderer
	// statusText is the bottom status line.
	statusText string
	// chatAutoScroll keeps the chat viewport pinned to the bottom.
	chatAutoScroll bool
	// activityAutoScroll keeps the activity viewport pinned to the bottom.
	activityAutoScroll bool
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// activePane identifies which pane is focused.
	activePane string
	// running indicates an in-flight turn.
	running bool
	// streamBuffer accumulates streamed agent text.
	streamBuffer strings.Builder
	// streamCh delivers stream messages into the update loop.
	streamCh chan tea.Msg
	// cancel cancels the current turn when present.
	cancel context.CancelFunc
	// pendingPrompt is sent as the first turn after startup, if set.
	pendingPrompt string
	// quitting indicates a user-requested exit.
	quitting bool
}

// runInteractiveTUI starts the full-screen terminal UI.
func runInteractiveTUI(rt *runtime, opts *options, initialPrompt string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive mode requires a TTY")
	}
	modelState := newTUIModel(rt, opts, initialPrompt)
	program := tea.NewProgram(modelState, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// newTUIModel constructs the initial TUI model state.
func newTUIModel(rt *runtime, opts *options, initialPrompt string) *tuiModel {
	input := textarea.New()
	input.Placeholder = "Ask the research agent..."
	input.Focus()
	input.CharLimit = 0
	input.Prompt = "> "
	input.SetHeight(3)
	input.SetWidth(20)

	chatView := viewport.New(20, 10)
	activityView := viewport.New(20, 10)
	activityView.SetContent("No activity yet.")

	renderMarkdown := rt.settings.RenderMarkdown == nil || *rt.settings.RenderMarkdown
	var renderer *glamour.TermRenderer
	if renderMarkdown {
		if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
			renderer = glam
		}
	}

	modelState := &tuiModel{
		rt:                 rt,
		verbose:            opts.Verbose,
		chatView:           chatView,
		activityView:       activityView,
		input:              input,
		markdownRenderer:   renderer,
		statusText:         "Enter: send | Alt+Enter: newline | Ctrl+P/N: history | Tab: panes | Ctrl+C: cancel | Ctrl+Q: quit",
		activePane:         "input",
		chatAutoScroll:     true,
		activityAutoScroll: true,
		pendingPrompt:      initialPrompt,
	}
	modelState.historyIndex = len(modelState.inputHistory)
	modelState.bootstrapHistory()
	return modelState
}

// Init starts the blinking cursor and dispatches any startup prompt.
func (m *tuiModel) Init() tea.Cmd {
	if m.pendingPrompt != "" {
		prompt := m.pendingPrompt
		m.pendingPrompt = ""
		cmd := m.beginTurn(prompt)
		return tea.Batch(textarea.Blink, cmd)
	}
	return textarea.Blink
}

// Update handles UI events and streaming updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case streamDeltaMsg:
		m.streamBuffer.WriteString(typed.Text)
		m.refreshChat()
		return m, m.listenStream()
	case activityMsg:
		m.appendActivity(typed.Line)
		return m, m.listenStream()
	case runDoneMsg:
		m.finishRun(typed.Result)
		return m, nil
	case runErrorMsg:
		m.finishError(typed.Err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full UI layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	header := m.renderHeader()
	body := m.renderBody()
	input := m.renderInput()
	status := m.renderStatus()
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

// handleKey routes keyboard input and command submission.
func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		if m.running {
			m.cancelRun("Cancelled.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+q":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.cyclePane(1)
		return m, nil
	case "shift+tab":
		m.cyclePane(-1)
		return m, nil
	case "esc":
		m.setActivePane("input")
		return m, nil
	case "pgup":
		m.scrollActivePane(-10)
		return m, nil
	case "pgdown":
		m.scrollActivePane(10)
		return m, nil
	case "home":
		m.gotoActivePaneTop()
		return m, nil
	case "end":
		m.gotoActivePaneBottom()
		return m, nil
	case "ctrl+p":
		if m.activePane == "input" {
			m.cycleInputHistory(-1)
			return m, nil
		}
	case "ctrl+n":
		if m.activePane == "input" {
			m.cycleInputHistory(1)
			return m, nil
		}
	}

	if key.Type == tea.KeyEnter {
		if key.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		return m.submitInput()
	}

	if m.activePane != "input" {
		switch key.String() {
		case "up", "left":
			m.scrollActivePane(-1)
			return m, nil
		case "down", "right":
			m.scrollActivePane(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// submitInput sends the current input as a new user message.
func (m *tuiModel) submitInput() (tea.Model, tea.Cmd) {
	if m.running {
		m.statusText = "Wait for the current response or cancel with Ctrl+C."
		return m, nil
	}
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.statusText = ""
	m.appendInputHistory(value)

	if handled, cmd := m.handleSlashCommand(value); handled {
		return m, cmd
	}

	return m, m.beginTurn(value)
}

// beginTurn starts a streamed turn for the given prompt.
func (m *tuiModel) beginTurn(prompt string) tea.Cmd {
	m.appendMessage("user", prompt)
	m.refreshChat()

	m.running = true
	m.streamBuffer.Reset()
	m.activityLines = nil
	m.activityView.SetContent("No activity yet.")
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.statusText = "Thinking..."
	m.streamCh = make(chan tea.Msg, 128)

	return tea.Batch(m.startTurn(ctx, prompt), m.listenStream())
}

// handleSlashCommand routes local commands; returns true when handled.
func (m *tuiModel) handleSlashCommand(value string) (bool, tea.Cmd) {
	if !strings.HasPrefix(value, "/") {
		return false, nil
	}
	parts := strings.Fields(strings.TrimPrefix(value, "/"))
	if len(parts) == 0 {
		return true, nil
	}
	switch strings.ToLower(parts[0]) {
	case "new":
		m.rt.runner.Reconciler.Clear()
		m.chatMessages = nil
		m.appendMessage("system", "Started a new conversation.")
	case "sessions":
		sessions, err := m.rt.store.ListSessions(10)
		if err != nil || len(sessions) == 0 {
			m.appendMessage("system", "No saved conversations.")
			break
		}
		m.appendMessage("system", "Recent conversations:\n"+strings.Join(sessions, "\n"))
	case "resume":
		if len(parts) < 2 {
			m.appendMessage("system", "Usage: /resume <session-id>")
			break
		}
		if err := m.rt.runner.Reconciler.Resume(context.Background(), parts[1]); err != nil {
			m.appendMessage("system", formatRunError(err))
			break
		}
		m.chatMessages = nil
		m.bootstrapHistory()
		m.appendMessage("system", "Resumed "+parts[1]+".")
	case "quit", "exit":
		m.quitting = true
		m.refreshChat()
		return true, tea.Quit
	case "help":
		m.appendMessage("system", "Commands: /new /sessions /resume <id> /quit")
	default:
		m.appendMessage("system", "Unknown command: /"+parts[0])
	}
	m.refreshChat()
	return true, nil
}

// appendInputHistory records an input line for history navigation.
func (m *tuiModel) appendInputHistory(value string) {
	if value == "" {
		return
	}
	m.inputHistory = append(m.inputHistory, value)
	if len(m.inputHistory) > 200 {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-200:]
	}
	m.historyIndex = len(m.inputHistory)
	m.historyDraft = ""
}

// cycleInputHistory moves the input buffer through stored history entries.
func (m *tuiModel) cycleInputHistory(delta int) {
	if len(m.inputHistory) == 0 {
		return
	}
	if m.historyIndex == len(m.inputHistory) {
		m.historyDraft = m.input.Value()
	}
	next := m.historyIndex + delta
	if next < 0 {
		next = 0
	}
	if next > len(m.inputHistory) {
		next = len(m.inputHistory)
	}
	m.historyIndex = next
	if m.historyIndex == len(m.inputHistory) {
		m.input.SetValue(m.historyDraft)
		return
	}
	m.input.SetValue(m.inputHistory[m.historyIndex])
}

// startTurn launches the runner and feeds updates into the stream channel.
func (m *tuiModel) startTurn(ctx context.Context, prompt string) tea.Cmd {
	runner := m.rt.runner
	verbose := m.verbose
	streamCh := m.streamCh

	return func() tea.Msg {
		callbacks := &chat.Callbacks{
			OnContent: func(fragment string) {
				select {
				case <-ctx.Done():
				case streamCh <- streamDeltaMsg{Text: fragment}:
				}
			},
			OnToolCalls: func(calls []agentwire.ToolCall) {
				for _, call := range calls {
					line := "tool " + call.Name
					if call.IsError {
						line += " failed"
					}
					select {
					case <-ctx.Done():
						return
					case streamCh <- activityMsg{Line: line}:
					}
				}
			},
			OnReasoningStep: func(step any) {
				if !verbose {
					return
				}
				select {
				case <-ctx.Done():
				case streamCh <- activityMsg{Line: summarizeForDisplay(fmt.Sprint(step), 160)}:
				}
			},
		}

		result, err := runner.Ask(ctx, prompt, callbacks)
		if err != nil {
			streamCh <- runErrorMsg{Err: err}
			close(streamCh)
			return nil
		}
		streamCh <- runDoneMsg{Result: result}
		close(streamCh)
		return nil
	}
}

// listenStream waits for the next streaming message.
func (m *tuiModel) listenStream() tea.Cmd {
	if m.streamCh == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-m.streamCh
		if !ok {
			return nil
		}
		return msg
	}
}

// finishRun appends the final agent message and resets turn state.
func (m *tuiModel) finishRun(result *chat.RunResult) {
	m.running = false
	m.statusText = ""
	m.cancel = nil

	finalText := m.streamBuffer.String()
	if result != nil && result.Final.Content != "" {
		finalText = result.Final.Content
	}
	m.appendMessage("agent", finalText)
	m.streamBuffer.Reset()
	m.refreshChat()

	if result != nil && result.Fallback {
		m.statusText = "warning: session not registered server-side"
	}
}

// finishError handles errors from the streaming turn.
func (m *tuiModel) finishError(err error) {
	m.running = false
	m.statusText = formatRunError(err)
	m.cancel = nil
	m.streamBuffer.Reset()
	m.refreshChat()
}

// cancelRun cancels an in-flight turn and updates status.
func (m *tuiModel) cancelRun(reason string) {
	if m.cancel != nil {
		m.cancel()
	}
	m.statusText = reason
}

// appendMessage adds a new chat message to the display list.
func (m *tuiModel) appendMessage(role string, content string) {
	m.chatMessages = append(m.chatMessages, tuiMessage{Role: role, Content: content})
}

// appendActivity records tool or reasoning activity for the side panel.
func (m *tuiModel) appendActivity(line string) {
	if line == "" {
		return
	}
	m.activityLines = append(m.activityLines, line)
	if len(m.activityLines) > 200 {
		m.activityLines = m.activityLines[len(m.activityLines)-200:]
	}
	m.refreshActivity()
}

// refreshChat rebuilds the chat viewport content.
func (m *tuiModel) refreshChat() {
	var builder strings.Builder
	for _, msg := range m.chatMessages {
		builder.WriteString(m.renderMessage(msg, false))
		builder.WriteString("\n\n")
	}
	if m.running {
		streamText := m.streamBuffer.String()
		if streamText != "" {
			builder.WriteString(m.renderMessage(tuiMessage{Role: "agent", Content: streamText}, true))
			builder.WriteString("\n\n")
		}
	}
	m.chatView.SetContent(builder.String())
	if m.chatAutoScroll {
		m.chatView.GotoBottom()
	}
}

// refreshActivity rebuilds the activity viewport content.
func (m *tuiModel) refreshActivity() {
	if len(m.activityLines) == 0 {
		m.activityView.SetContent("No activity yet.")
		return
	}
	m.activityView.SetContent(strings.Join(m.activityLines, "\n"))
	if m.activityAutoScroll {
		m.activityView.GotoBottom()
	}
}

// bootstrapHistory seeds the chat view with the resumed transcript, if any.
func (m *tuiModel) bootstrapHistory() {
	sessionID := m.rt.runner.Reconciler.SessionID()
	if sessionID == "" {
		return
	}
	records, err := m.rt.store.LoadRecords(sessionID)
	if err != nil {
		return
	}
	for _, record := range records {
		m.appendMessage(record.Role, record.Content)
	}
	m.refreshChat()
}

// applyWindowSize recalculates the layout for a new window size.
func (m *tuiModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := m.input.Height()
	bodyHeight := m.height - headerHeight - statusHeight - inputHeight
	if bodyHeight < 4 {
		bodyHeight = 4
	}

	activityWidth := maxInt(24, m.width/4)
	if activityWidth > 60 {
		activityWidth = 60
	}
	chatWidth := m.width - activityWidth - 3
	if chatWidth < 20 {
		chatWidth = 20
		activityWidth = maxInt(20, m.width-chatWidth-3)
	}

	m.chatView.Width = chatWidth - 2
	m.chatView.Height = bodyHeight - 2
	m.activityView.Width = activityWidth - 2
	m.activityView.Height = bodyHeight - 2
	m.input.SetWidth(m.width - 2)

	m.refreshChat()
	m.refreshActivity()
}

// renderHeader builds the top status line.
func (m *tuiModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	sessionID := m.rt.runner.Reconciler.SessionID()
	if sessionID == "" {
		sessionID = "new"
	}
	header := fmt.Sprintf("Inquest | agent %s | session %s", m.rt.runner.AgentID, sessionID)
	if m.running {
		header += " | running"
	}
	return style.Render(padRight(header, m.width))
}

// renderBody composes the chat and activity panes.
func (m *tuiModel) renderBody() string {
	chatPane := m.renderPane("Conversation", m.chatView.View(), m.chatView.Width+2)
	activityPane := m.renderPane("Activity", m.activityView.View(), m.activityView.Width+2)
	return lipgloss.JoinHorizontal(lipgloss.Top, chatPane, activityPane)
}

// setActivePane updates focus and input state for the requested pane.
func (m *tuiModel) setActivePane(pane string) {
	switch pane {
	case "chat", "activity":
		m.activePane = pane
		m.input.Blur()
	default:
		m.activePane = "input"
		m.input.Focus()
	}
}

// cyclePane moves focus between input, chat, and activity.
func (m *tuiModel) cyclePane(delta int) {
	order := []string{"input", "chat", "activity"}
	index := 0
	for i, name := range order {
		if name == m.activePane {
			index = i
			break
		}
	}
	next := (index + delta) % len(order)
	if next < 0 {
		next += len(order)
	}
	m.setActivePane(order[next])
}

// scrollActivePane scrolls the currently focused pane.
func (m *tuiModel) scrollActivePane(delta int) {
	switch m.activePane {
	case "activity":
		m.activityAutoScroll = false
		if delta > 0 {
			m.activityView.LineDown(delta)
		} else {
			m.activityView.LineUp(-delta)
		}
	case "chat":
		m.chatAutoScroll = false
		if delta > 0 {
			m.chatView.LineDown(delta)
		} else {
			m.chatView.LineUp(-delta)
		}
	}
}

// gotoActivePaneTop moves the active pane to the top.
func (m *tuiModel) gotoActivePaneTop() {
	switch m.activePane {
	case "activity":
		m.activityView.GotoTop()
		m.activityAutoScroll = false
	case "chat":
		m.chatView.GotoTop()
		m.chatAutoScroll = false
	}
}

// gotoActivePaneBottom moves the active pane to the bottom.
func (m *tuiModel) gotoActivePaneBottom() {
	switch m.activePane {
	case "activity":
		m.activityView.GotoBottom()
		m.activityAutoScroll = true
	case "chat":
		m.chatView.GotoBottom()
		m.chatAutoScroll = true
	}
}

// renderInput returns the input box rendering.
func (m *tuiModel) renderInput() string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	return style.Render(m.input.View())
}

// renderStatus returns the bottom status line.
func (m *tuiModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "Ready"
	}
	if m.activePane != "" {
		text = fmt.Sprintf("%s | focus:%s", text, m.activePane)
	}
	return style.Render(padRight(text, m.width))
}

// renderPane formats a bordered pane with a title.
func (m *tuiModel) renderPane(title string, content string, width int) string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	header := fmt.Sprintf("[%s]", title)
	pane := lipgloss.JoinVertical(lipgloss.Left, header, content)
	return style.Width(width).Render(pane)
}

// renderMessage formats a chat message for display.
func (m *tuiModel) renderMessage(message tuiMessage, streaming bool) string {
	label := strings.ToUpper(message.Role)
	content := message.Content
	style := lipgloss.NewStyle()
	switch message.Role {
	case "user":
		style = style.Foreground(lipgloss.Color("39")).Bold(true)
		label = "YOU"
	case "agent":
		style = style.Foreground(lipgloss.Color("10")).Bold(true)
		label = "AGENT"
	case "system":
		style = style.Foreground(lipgloss.Color("3"))
		label = "SYSTEM"
	}
	if !streaming && message.Role == "agent" {
		content = m.renderMarkdownText(content)
	}
	return fmt.Sprintf("%s\n%s", style.Render(label+":"), content)
}

// renderMarkdownText converts markdown into terminal output when possible.
func (m *tuiModel) renderMarkdownText(content string) string {
	if m.markdownRenderer == nil {
		return content
	}
	rendered, err := m.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// border defines a simple ASCII border to avoid Unicode dependencies.
func (m *tuiModel) border() lipgloss.Border {
	return lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}
}

// padRight pads a string with spaces to the target width.
func padRight(value string, width int) string {
	runes := []rune(value)
	if len(runes) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(runes))
}

// maxInt returns the maximum of two integers.
func maxInt(left int, right int) int {
	if left > right {
		return left
	}
	return right
}
