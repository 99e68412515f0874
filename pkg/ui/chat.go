package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/buildfund/onboard/pkg/api"
	"github.com/buildfund/onboard/pkg/onboarding"
	"github.com/buildfund/onboard/pkg/transcript"
)

type initDoneMsg struct{ err error }

type submitDoneMsg struct{ err error }

type uploadDoneMsg struct{ err error }

type sessionCompleteMsg struct{}

// Model is the interactive onboarding chat. All conversation state lives in
// the controller; the model only renders it and translates key presses into
// controller calls.
type Model struct {
	ctrl   *onboarding.Controller
	logger zerolog.Logger

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width   int
	height  int
	ready   bool
	busy    bool
	done    bool
	lastErr error
}

func NewModel(ctrl *onboarding.Controller, logger zerolog.Logger) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your answer..."
	ti.Focus()
	ti.CharLimit = 512

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	return Model{
		ctrl:    ctrl,
		logger:  logger,
		input:   ti,
		spinner: sp,
		busy:    true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.initCmd())
}

func (m Model) initCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.ctrl.Initialize(context.Background())
		return initDoneMsg{err: err}
	}
}

func (m Model) submitCmd(answer string) tea.Cmd {
	return func() tea.Msg {
		err := m.ctrl.SubmitAnswer(context.Background(), answer)
		return submitDoneMsg{err: err}
	}
}

func (m Model) uploadCmd(paths []string) tea.Cmd {
	return func() tea.Msg {
		files := make([]api.File, 0, len(paths))
		handles := make([]*os.File, 0, len(paths))
		defer func() {
			for _, h := range handles {
				_ = h.Close()
			}
		}()
		for _, p := range paths {
			f, err := os.Open(p)
			if err != nil {
				return uploadDoneMsg{err: err}
			}
			handles = append(handles, f)
			files = append(files, api.File{Name: filepath.Base(p), Content: f})
		}
		err := m.ctrl.SubmitFiles(context.Background(), files)
		return uploadDoneMsg{err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewportHeight := msg.Height - 6
		if viewportHeight < 3 {
			viewportHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewportHeight
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy || m.done {
				return m, nil
			}
			return m.handleSubmit()
		}

	case initDoneMsg:
		m.busy = false
		m.lastErr = msg.err
		m.syncInput()
		m.refreshViewport()
		return m, nil

	case submitDoneMsg:
		m.busy = false
		m.lastErr = msg.err
		m.syncInput()
		m.refreshViewport()
		return m, nil

	case uploadDoneMsg:
		m.busy = false
		m.lastErr = msg.err
		m.syncInput()
		m.refreshViewport()
		return m, nil

	case sessionCompleteMsg:
		m.done = true
		m.refreshViewport()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy {
			m.refreshViewport()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		return m, nil
	}
	question := m.ctrl.CurrentQuestion()

	if question.Kind == onboarding.KindFile {
		paths := splitPaths(raw)
		if len(paths) == 0 {
			return m, nil
		}
		m.input.Reset()
		m.busy = true
		m.lastErr = nil
		return m, tea.Batch(m.spinner.Tick, m.uploadCmd(paths))
	}

	answer := raw
	// numbered shortcut for select questions, "2" picks the second option
	if len(question.Options) > 0 {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(question.Options) {
			answer = question.Options[n-1]
		}
	}

	m.input.Reset()
	m.busy = true
	m.lastErr = nil
	m.refreshViewport()
	return m, tea.Batch(m.spinner.Tick, m.submitCmd(answer))
}

// syncInput adjusts the input hint to the question now being asked.
func (m *Model) syncInput() {
	question := m.ctrl.CurrentQuestion()
	switch {
	case question.Kind == onboarding.KindFile:
		m.input.Placeholder = "File paths, comma separated..."
	case question.Placeholder() != "":
		m.input.Placeholder = question.Placeholder()
	case len(question.Options) > 0:
		m.input.Placeholder = "Pick a number or type your answer..."
	default:
		m.input.Placeholder = "Type your answer..."
	}
}

// splitPaths accepts comma or whitespace separated file paths.
func splitPaths(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	paths := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			paths = append(paths, f)
		}
	}
	return paths
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	var sb strings.Builder
	for _, turn := range m.ctrl.Transcript().Turns() {
		sb.WriteString(renderTurn(turn, m.width))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func renderTurn(turn transcript.Turn, width int) string {
	wrap := lipgloss.NewStyle().Width(max(width-4, 20))
	switch turn.Speaker {
	case transcript.SpeakerBot:
		return botStyle.Render("Bot: ") + wrap.Render(turn.Body)
	default:
		prefix := userStyle.Render("You: ")
		switch turn.Status {
		case transcript.StatusPending:
			return prefix + pendingStyle.Render(turn.Body+" (sending)")
		case transcript.StatusFailed:
			return prefix + failedStyle.Render(turn.Body)
		default:
			return prefix + wrap.Render(turn.Body)
		}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	var sb strings.Builder
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderOptions())
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("enter: send • esc: quit"))
	return sb.String()
}

func (m Model) renderOptions() string {
	question := m.ctrl.CurrentQuestion()
	if len(question.Options) == 0 || m.busy || m.done {
		return ""
	}
	var sb strings.Builder
	for i, opt := range question.Options {
		sb.WriteString(optionStyle.Render(fmt.Sprintf("  %d) %s", i+1, opt)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStatus() string {
	switch {
	case m.busy && m.ctrl.Uploading():
		return m.spinner.View() + statusStyle.Render(" uploading documents...")
	case m.busy:
		return m.spinner.View() + statusStyle.Render(" thinking...")
	case m.lastErr != nil:
		return errorStyle.Render("error: " + api.UserMessage(m.lastErr))
	case m.done:
		return progressStyle.Render("All done! 🎉")
	default:
		progress := m.ctrl.Progress()
		if progress.CompletionPercentage > 0 {
			return progressStyle.Render(fmt.Sprintf("%d%% complete", progress.CompletionPercentage))
		}
		return ""
	}
}

// Run drives the full-screen chat until the user quits or the session
// completes. The controller's completion callback is wired to the program so
// the TUI can exit on its own once onboarding finishes.
func Run(ctrl *onboarding.Controller, logger zerolog.Logger) error {
	m := NewModel(ctrl, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	ctrl.SetOnComplete(func() {
		p.Send(sessionCompleteMsg{})
	})
	_, err := p.Run()
	return err
}
