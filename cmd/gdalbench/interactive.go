package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/gdal-async/gdal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type scenarioState int

const (
	statePending scenarioState = iota
	stateRunning
	stateDone
	stateFailed
)

type scenarioRow struct {
	err     error
	name    string
	outcome string
	percent float64
	state   scenarioState
}

type interactiveModel struct {
	err      error
	rt       *gdal.Runtime
	cfg      *benchConfig
	events   chan tea.Msg
	rows     []scenarioRow
	current  int
	spinner  spinner.Model
	progress progress.Model
	finished bool
}

type startedMsg struct {
	err error
	rt  *gdal.Runtime
}

type progressMsg struct {
	index   int
	percent float64
}

type scenarioDoneMsg struct {
	err   error
	res   result
	index int
}

func newInteractiveModel(cfg *benchConfig) *interactiveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = infoStyle

	m := &interactiveModel{
		cfg:      cfg,
		events:   make(chan tea.Msg, 64),
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		current:  -1,
	}
	for _, name := range cfg.Scenarios {
		m.rows = append(m.rows, scenarioRow{name: name})
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

func (m *interactiveModel) start() tea.Msg {
	rt, err := newRuntime(context.Background(), m.cfg, nil)
	return startedMsg{rt: rt, err: err}
}

// runNext starts the next scenario and returns the command that waits for
// its events.
func (m *interactiveModel) runNext() tea.Cmd {
	m.current++
	if m.current >= len(m.rows) {
		m.finished = true
		return nil
	}
	i := m.current
	m.rows[i].state = stateRunning
	name := m.rows[i].name
	go func() {
		res, err := scenarios[name](context.Background(), m.rt, m.cfg, func(done, total int) {
			select {
			case m.events <- progressMsg{index: i, percent: float64(done) / float64(total)}:
			default:
				// Drop updates the UI has not caught up with.
			}
		})
		m.events <- scenarioDoneMsg{index: i, res: res, err: err}
	}()
	return m.wait
}

func (m *interactiveModel) wait() tea.Msg {
	return <-m.events
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.rt != nil {
				_ = m.rt.Close()
			}
			return m, tea.Quit
		}

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		return m, m.runNext()

	case progressMsg:
		m.rows[msg.index].percent = msg.percent
		return m, m.wait

	case scenarioDoneMsg:
		row := &m.rows[msg.index]
		row.percent = 1
		if msg.err != nil {
			row.state = stateFailed
			row.err = msg.err
		} else {
			row.state = stateDone
			row.outcome = formatResult(msg.res)
		}
		return m, m.runNext()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.rt == nil {
		return m.spinner.View() + " Starting runtime..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("gdalbench"))
	b.WriteString(" ")
	b.WriteString(infoStyle.Render(fmt.Sprintf("%dx%d, %d workers", m.cfg.Width, m.cfg.Height, m.rt.Pool().Workers())))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		switch row.state {
		case statePending:
			b.WriteString("  " + helpStyle.Render(row.name))
		case stateRunning:
			b.WriteString(m.spinner.View() + " " + nameStyle.Render(fmt.Sprintf("%-10s", row.name)) + " ")
			b.WriteString(m.progress.ViewAs(row.percent))
		case stateDone:
			b.WriteString("✓ " + nameStyle.Render(fmt.Sprintf("%-10s", row.name)) + " ")
			b.WriteString(resultStyle.Render(row.outcome))
		case stateFailed:
			b.WriteString("✗ " + nameStyle.Render(fmt.Sprintf("%-10s", row.name)) + " ")
			b.WriteString(errorStyle.Render(row.err.Error()))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.finished {
		st := m.rt.Stats()
		b.WriteString(infoStyle.Render(fmt.Sprintf("%d tasks, %d wrappers created, %d destroyed",
			st.Pool.Submitted, st.Created, st.Destroyed)))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func runInteractive(cfg *benchConfig) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
