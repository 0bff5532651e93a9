package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/acm19/shrink/internal/shrink"
)

// maxLog is how many recent messages the view keeps.
const maxLog = 5

// Model renders a live view of a bulk run from its progress events.
type Model struct {
	events     <-chan shrink.ProgressEvent
	started    time.Time
	width      int
	total      int
	current    int
	resized    int
	skipped    int
	failed     int
	bytesSaved int64
	file       string
	log        []string
	quitting   bool
}

type doneMsg struct{}

type eventMsg shrink.ProgressEvent

// NewModel creates a Model reading from events. The program quits when the
// channel is closed.
func NewModel(events <-chan shrink.ProgressEvent) Model {
	return Model{events: events, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForEvents(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m = m.apply(shrink.ProgressEvent(msg))
		return m, listenForEvents(m.events)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) apply(ev shrink.ProgressEvent) Model {
	if ev.Total > 0 {
		m.total = ev.Total
	}
	if ev.Current > m.current {
		m.current = ev.Current
	}
	if ev.File != "" {
		m.file = ev.File
	}

	switch ev.Stage {
	case shrink.StageResized:
		m.resized++
		m.bytesSaved += ev.BytesSaved
	case shrink.StageSkipped:
		m.skipped++
	case shrink.StageFailed:
		m.failed++
	}

	if ev.Message != "" && ev.Stage != shrink.StageChecking {
		m.log = append(m.log, ev.Message)
		if len(m.log) > maxLog {
			m.log = m.log[len(m.log)-maxLog:]
		}
	}
	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = float64(m.current) / float64(m.total)
		if ratio > 1 {
			ratio = 1
		}
	}

	elapsed := time.Since(m.started).Round(time.Second)

	lines := []string{
		titleStyle.Render("shrink"),
		labelStyle.Render(fmt.Sprintf("Images: %d / %d", m.current, m.total)) +
			dimStyle.Render(fmt.Sprintf("  resized:%d skipped:%d", m.resized, m.skipped)) +
			failStyle(m.failed).Render(fmt.Sprintf(" failed:%d", m.failed)),
		labelStyle.Render(fmt.Sprintf("Bytes saved: %d", m.bytesSaved)),
		dimStyle.Render(fmt.Sprintf("Current: %s", m.file)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(renderBar(barWidth, ratio)),
	}
	for _, line := range m.log {
		lines = append(lines, dimStyle.Render(line))
	}

	return strings.Join(lines, "\n")
}

func listenForEvents(events <-chan shrink.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

func failStyle(failed int) lipgloss.Style {
	if failed > 0 {
		return warnStyle
	}
	return dimStyle
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	barStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Foreground(ColorWarn)
)
