// Package chat is the terminal chat UI over a session. It renders the message
// log, the live streaming accumulators, and running tools, and sends user
// input back through the session.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/adragomir/pi.nvim/internal/promise"
	"github.com/adragomir/pi.nvim/internal/session"
	"github.com/adragomir/pi.nvim/internal/wire"
)

// Conversation is the slice of the session the UI reads and drives.
// *session.Session implements it.
type Conversation interface {
	State() session.State
	TurnActive() bool
	Messages() []wire.Message
	StreamingText() string
	StreamingThinking() string
	ToolExecutions() []session.ToolExecution
	Send(text string) *promise.Promise[json.RawMessage]
}

var _ Conversation = (*session.Session)(nil)

// RenderMsg asks the UI to re-read the session and redraw. The session's
// OnRender hook forwards it through tea.Program.Send.
type RenderMsg struct{}

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	thinkingStyle  = lipgloss.NewStyle().Faint(true).Italic(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model for the chat UI.
type Model struct {
	conv     Conversation
	viewport viewport.Model
	input    textarea.Model
	width    int
	height   int
	sendErr  string
}

// SendFailedMsg reports an asynchronous delivery failure.
type SendFailedMsg struct{ Err error }

// NewModel creates the chat model over conv.
func NewModel(conv Conversation) Model {
	vp := viewport.New(80, 20)
	vp.SetContent("Connecting to pi agent...\n")

	input := textarea.New()
	input.Placeholder = "Type a message (enter to send, ctrl+c to quit)"
	input.SetHeight(2)
	input.Focus()

	return Model{
		conv:     conv,
		viewport: vp,
		input:    input,
		width:    80,
		height:   24,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.viewport.Width = typed.Width
		m.viewport.Height = typed.Height - m.input.Height() - 2
		m.input.SetWidth(typed.Width)
		m.refresh()
		return m, nil

	case RenderMsg:
		m.refresh()
		return m, nil

	case SendFailedMsg:
		m.sendErr = typed.Err.Error()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch typed.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.sendErr = ""
			fut := m.conv.Send(text)
			m.refresh()
			return m, func() tea.Msg {
				if _, err := fut.Await(); err != nil {
					return SendFailedMsg{Err: err}
				}
				return RenderMsg{}
			}
		}
	}

	m.input, cmd = m.input.Update(msg)
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

// View implements tea.Model.
func (m Model) View() string {
	parts := []string{
		m.viewport.View(),
		m.statusBar(),
		m.input.View(),
	}
	return strings.Join(parts, "\n")
}

// refresh rebuilds the transcript from the session and scrolls to the bottom.
func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *Model) transcript() string {
	var b strings.Builder

	for _, msg := range m.conv.Messages() {
		switch msg.Role {
		case wire.RoleUser:
			b.WriteString(userStyle.Render("you") + "\n")
			b.WriteString(msg.Text() + "\n\n")
		case wire.RoleAssistant:
			b.WriteString(assistantStyle.Render("pi") + "\n")
			b.WriteString(renderMarkdown(msg.Text(), m.width) + "\n")
		}
	}

	if thinking := m.conv.StreamingThinking(); thinking != "" {
		b.WriteString(thinkingStyle.Render(thinking) + "\n")
	}
	if text := m.conv.StreamingText(); text != "" {
		b.WriteString(assistantStyle.Render("pi") + "\n")
		b.WriteString(text + "▌\n")
	}

	for _, tool := range m.conv.ToolExecutions() {
		line := fmt.Sprintf("⚙ %s (%s)", tool.Name, tool.Status)
		if tool.IsError {
			line = errorStyle.Render(line)
		} else {
			line = toolStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if m.sendErr != "" {
		b.WriteString(errorStyle.Render("send failed: "+m.sendErr) + "\n")
	}

	return b.String()
}

func (m *Model) statusBar() string {
	parts := []string{"• " + m.conv.State().String()}
	if m.conv.TurnActive() {
		parts = append(parts, "agent working...")
	}
	if m.conv.State() == session.StateDisconnected {
		parts = append(parts, "connection lost")
	}
	return statusStyle.Render(strings.Join(parts, "  "))
}

// renderMarkdown renders finalized assistant text through glamour, falling
// back to the plain text when rendering fails.
func renderMarkdown(content string, width int) string {
	if content == "" {
		return ""
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content + "\n"
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}
