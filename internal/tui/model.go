// Package tui renders a calibration session in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"calibmon/internal/domain"
)

const (
	hintLeftFrame    = "Keep your back straight"
	labelCalibrating = "Calibrating… %d%%"
	labelFinalizing  = "Finishing calibration…"
	labelComplete    = "Calibration complete!"
	labelAction      = "Start session"
)

// Controller is what the view needs from the session controller.
type Controller interface {
	Snapshot() domain.Snapshot
	Complete(ctx context.Context) (string, error)
}

// StatsSource reports renderer counters.
type StatsSource interface {
	Stats() domain.RenderStats
}

type completedMsg struct {
	target string
	err    error
}

type keyMap struct {
	Finish key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Finish: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", strings.ToLower(labelAction))),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Finish, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Model is the Bubble Tea model for one calibration session.
type Model struct {
	controller Controller
	stats      StatsSource
	keys       keyMap
	help       help.Model
	bar        progress.Model

	snap   domain.Snapshot
	frames int
	target string
	err    error
}

func NewModel(controller Controller, stats StatsSource) Model {
	return Model{
		controller: controller,
		stats:      stats,
		keys:       defaultKeys(),
		help:       help.New(),
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		snap:       controller.Snapshot(),
	}
}

// Target is the completion target, empty until the terminal action is taken.
func (m Model) Target() string {
	return m.target
}

// Init re-reads the controller state so nothing published before the
// program started receiving messages is lost.
func (m Model) Init() tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		return StateMsg{Snapshot: controller.Snapshot()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.bar.Width = min(max(msg.Width-12, 10), 60)
		return m, nil

	case StateMsg:
		m.snap = msg.Snapshot
		return m, nil

	case FrameMsg:
		m.frames++
		return m, nil

	case NavigateMsg:
		m.target = msg.Target
		return m, tea.Quit

	case completedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.target = msg.target
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Finish):
			if !m.snap.TerminalActionEnabled {
				return m, nil
			}
			return m, m.completeCmd()
		}
	}
	return m, nil
}

func (m Model) completeCmd() tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		target, err := controller.Complete(context.Background())
		return completedMsg{target: target, err: err}
	}
}

func (m Model) View() string {
	title := titleStyle.Render(fmt.Sprintf("Calibration · device %s", m.snap.DeviceID))
	if m.snap.SessionID != "" {
		title += mutedStyle.Render(" · session " + m.snap.SessionID)
	}

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		m.panel(),
		"",
		m.footer(),
		m.help.View(m.keys),
	))
}

func (m Model) panel() string {
	if !m.snap.Visible {
		return mutedStyle.Render("Calibration closed → " + m.target)
	}

	style := frameStyle
	if m.snap.InFrame {
		style = frameInStyle
	}

	var lines []string
	switch m.snap.Phase {
	case domain.PhaseCalibrating:
		if !m.snap.InFrame {
			lines = append(lines, hintStyle.Render(hintLeftFrame))
		}
		if label := progressLabel(m.snap.Progress); label != "" {
			lines = append(lines, label)
		}
		lines = append(lines, m.bar.ViewAs(m.snap.Progress/100))
	case domain.PhaseFinalizing:
		// A failed restart looks the same as one still in flight; the
		// action simply never appears.
		lines = append(lines, labelFinalizing)
	case domain.PhaseDone:
		lines = append(lines, doneStyle.Render(labelComplete))
		if m.snap.TerminalActionEnabled {
			lines = append(lines, "", actionStyle.Render(labelAction))
		}
	}
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		lines = append(lines, errorStyle.Render(m.err.Error()))
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) footer() string {
	var stats domain.RenderStats
	if m.stats != nil {
		stats = m.stats.Stats()
	}
	return mutedStyle.Render(fmt.Sprintf("frames drawn %d · superseded %d · failed %d · %s",
		stats.Drawn, stats.Superseded, stats.Failed, m.snap.Phase))
}

// progressLabel is shown only while calibration is partway done.
func progressLabel(pct float64) string {
	if pct <= 0 || pct >= 100 {
		return ""
	}
	return fmt.Sprintf(labelCalibrating, int(pct))
}
