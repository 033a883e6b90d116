// Package tui is a terminal front panel for the simulated device.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"
)

// TickInterval is how often the model refreshes from the device.
const TickInterval = 20 * time.Millisecond

// TickMsg triggers a refresh of the lamps and the status line.
type TickMsg time.Time

// lamps are the output lines shown on the panel, in display order.
var lamps = []struct {
	line  string
	label string
}{
	{device.LineShort, "SHORT"},
	{device.LineLong, "LONG"},
	{device.LineKeyOut, "KEY"},
	{device.LineSidetone, "TONE"},
}

// Model is the root bubbletea model of the simulator.
type Model struct {
	device *device.Device
	board  *device.SimBoard

	status device.Status
	levels map[string]bool

	errorMessage string
	quitting     bool
	width        int
}

// New creates a model over a running device and the board it is wired to.
func New(dev *device.Device, board *device.SimBoard) Model {
	m := Model{device: dev, board: board}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *Model) refresh() {
	m.status = m.device.Status()
	m.levels = m.board.Levels()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var line string
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "k", " ":
		line = device.LineKey
	case "m":
		line = device.LineMode
	case "c":
		line = device.LineChannel
	default:
		return m, nil
	}

	if _, err := m.board.Toggle(line); err != nil {
		m.errorMessage = err.Error()
		return m, nil
	}
	m.errorMessage = ""
	m.refresh()
	return m, nil
}

// Quitting reports whether the user asked to leave.
func (m Model) Quitting() bool {
	return m.quitting
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("KeyCapture"))
	b.WriteString("  ")
	b.WriteString(stateStyle(m.status.State).Render(string(m.status.State)))
	b.WriteString("\n\n")

	parts := make([]string, 0, len(lamps))
	for _, l := range lamps {
		parts = append(parts, lamp(m.levels[l.line], l.label))
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n\n")

	b.WriteString(StatusStyle.Render(fmt.Sprintf("channel %d (%s)  mode %s  records %d",
		m.status.Channel, m.status.ChannelName, m.status.Mode, m.status.Records)))
	if !m.status.StoreReady {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("storage unavailable"))
	}
	b.WriteString("\n")

	buttons := []string{}
	for _, name := range []string{device.LineKey, device.LineMode, device.LineChannel} {
		if m.levels[name] {
			buttons = append(buttons, PressedStyle.Render("["+name+"]"))
		} else {
			buttons = append(buttons, StatusStyle.Render(" "+name+" "))
		}
	}
	b.WriteString(strings.Join(buttons, " "))

	if m.errorMessage != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.errorMessage))
	}

	panel := PanelStyle.Render(b.String())
	return panel + "\n" + footer() + "\n"
}

func lamp(on bool, label string) string {
	if on {
		return LampOnStyle.Render("● " + label)
	}
	return LampOffStyle.Render("○ " + label)
}

func stateStyle(s device.State) lipgloss.Style {
	switch s {
	case device.StateRecording:
		return RecordingStyle
	case device.StatePlaying:
		return PlayingStyle
	default:
		return IdleStyle
	}
}

func footer() string {
	keys := []struct{ key, desc string }{
		{"k/space", "key"},
		{"m", "mode"},
		{"c", "channel"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, FooterKeyStyle.Render(k.key)+" "+FooterDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}
