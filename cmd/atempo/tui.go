package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/atempo-ai/atempo-core/core"
	"github.com/atempo-ai/atempo-core/core/events"
)

const maxLogLines = 200

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	statusColors = map[orchestration.StatusKind]lipgloss.Color{
		orchestration.StatusIdle:       lipgloss.Color("245"),
		orchestration.StatusListening:  lipgloss.Color("42"),
		orchestration.StatusSpeaking:   lipgloss.Color("39"),
		orchestration.StatusProcessing: lipgloss.Color("214"),
		orchestration.StatusError:      lipgloss.Color("196"),
	}
)

type statusMsg orchestration.Status

type logMsg string

type sessionDoneMsg struct{ err error }

// runTUI drives one session behind a bubbletea front end subscribed to the
// orchestrator's status and event callbacks.
func runTUI(build buildOrchestrator) error {
	var program *tea.Program

	orchestrator := build(
		func(status orchestration.Status) { program.Send(statusMsg(status)) },
		func(event events.Event) {
			if line := describeEvent(event); line != "" {
				program.Send(logMsg(line))
			}
		},
	)

	program = tea.NewProgram(newTUIModel(orchestrator), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal ui failed: %w", err)
	}

	orchestrator.Stop()
	return orchestrator.Err()
}

type tuiModel struct {
	orchestrator *orchestration.Orchestrator
	spinner      spinner.Model
	status       orchestration.Status
	log          []string
	width        int
	started      bool
	done         bool
}

func newTUIModel(orchestrator *orchestration.Orchestrator) tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return tuiModel{
		orchestrator: orchestrator,
		spinner:      s,
		status:       orchestration.Status{Kind: orchestration.StatusIdle},
		width:        80,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			if !m.started {
				m.started = true
				return m, m.startSession()
			}
			if !m.done {
				orchestrator := m.orchestrator
				return m, func() tea.Msg {
					orchestrator.Stop()
					return nil
				}
			}
		}
		return m, nil

	case statusMsg:
		m.status = orchestration.Status(msg)
		return m, nil

	case logMsg:
		m.log = append(m.log, string(msg))
		if len(m.log) > maxLogLines {
			m.log = m.log[len(m.log)-maxLogLines:]
		}
		return m, nil

	case sessionDoneMsg:
		m.done = true
		if msg.err != nil {
			m.log = append(m.log, "session ended with error: "+msg.err.Error())
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// startSession starts the orchestrator and, in a second command, waits for it
// to finish so the UI learns about the terminal state.
func (m tuiModel) startSession() tea.Cmd {
	orchestrator := m.orchestrator
	return func() tea.Msg {
		if err := orchestrator.Start(context.Background()); err != nil {
			return sessionDoneMsg{err: err}
		}
		<-orchestrator.Done()
		return sessionDoneMsg{err: orchestrator.Err()}
	}
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("atempo") + "  " + helpStyle.Render("voice scheduling assistant"))
	b.WriteString("\n\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if len(m.log) > 0 {
		visible := m.log
		if len(visible) > 12 {
			visible = visible[len(visible)-12:]
		}
		b.WriteString(logStyle.Render(wordwrap.String(strings.Join(visible, "\n"), max(20, m.width-2))))
		b.WriteString("\n\n")
	}

	switch {
	case m.done:
		b.WriteString(helpStyle.Render("session over - q to quit"))
	case m.started:
		b.WriteString(helpStyle.Render("s to stop the session - q to quit"))
	default:
		b.WriteString(helpStyle.Render("s to start the session - q to quit"))
	}
	return b.String()
}

func (m tuiModel) statusLine() string {
	color, ok := statusColors[m.status.Kind]
	if !ok {
		color = lipgloss.Color("245")
	}
	style := statusStyle.Foreground(color)

	switch m.status.Kind {
	case orchestration.StatusError:
		return errorStyle.Render("error: " + m.status.Message)
	case orchestration.StatusProcessing, orchestration.StatusSpeaking:
		return m.spinner.View() + " " + style.Render(string(m.status.Kind))
	default:
		return style.Render(string(m.status.Kind))
	}
}
