// ABOUTME: Bubbletea model for the synth status TUI
// ABOUTME: Shows the sink, stream format, driver state, and voice bank
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
	"github.com/mitchpk/tinysynth/pkg/protocol"
)

// RefreshInterval is how often the model polls for status
const RefreshInterval = 250 * time.Millisecond

// Status is a snapshot of the running synth
type Status struct {
	Backend   string
	Format    audio.Format
	Preset    string
	State     string
	Frames    uint64
	Failures  uint64
	Voices    []protocol.VoiceInfo
	Listeners []string // stream sink only
}

// StatusFunc returns the current status; it is called from the TUI goroutine
type StatusFunc func() Status

// Model represents the TUI state
type Model struct {
	status   Status
	poll     StatusFunc
	volume   output.VolumeControl
	started  time.Time
	quitting bool

	// Dimensions
	width  int
	height int
}

type tickMsg time.Time

// StatusMsg replaces the model's status
type StatusMsg Status

// NewModel creates a model polling poll. vol may be nil, which disables
// the volume keys.
func NewModel(poll StatusFunc, vol output.VolumeControl) Model {
	m := Model{
		poll:    poll,
		volume:  vol,
		started: time.Now(),
	}
	if poll != nil {
		m.status = poll()
	}
	return m
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.poll != nil {
			m.status = m.poll()
		}
		return m, tickEvery()
	case StatusMsg:
		m.status = Status(msg)
	}

	return m, nil
}

// handleKey adjusts volume on arrows and m; every other key quits
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.volume != nil {
		switch msg.String() {
		case "up", "+":
			m.volume.SetVolume(m.volume.GetVolume() + 5)
			return m, nil
		case "down", "-":
			m.volume.SetVolume(m.volume.GetVolume() - 5)
			return m, nil
		case "m":
			m.volume.SetMuted(!m.volume.IsMuted())
			return m, nil
		}
	}

	m.quitting = true
	return m, tea.Quit
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("tinysynth"))
	b.WriteString("\n\n")

	field(&b, "Output", m.status.Backend)
	field(&b, "Format", m.status.Format.String())
	if m.status.Preset != "" {
		field(&b, "Preset", m.status.Preset)
	}

	b.WriteString(headerStyle.Render("State: "))
	b.WriteString(stateStyle(m.status.State).Render(m.status.State))
	b.WriteString("\n")

	field(&b, "Rendered", renderedTime(m.status.Frames, m.status.Format.SampleRate))
	if m.status.Failures > 0 {
		field(&b, "Source errors", fmt.Sprint(m.status.Failures))
	}

	if m.volume != nil {
		mute := ""
		if m.volume.IsMuted() {
			mute = " (muted)"
		}
		field(&b, "Volume", fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume.GetVolume(), 100, 10), m.volume.GetVolume(), mute))
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Voices (%d)", len(m.status.Voices))))
	b.WriteString("\n")
	for _, v := range m.status.Voices {
		b.WriteString(valueStyle.Render("  " + describeVoice(v)))
		b.WriteString("\n")
	}

	if m.status.Backend == "stream" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Listeners (%d)", len(m.status.Listeners))))
		b.WriteString("\n")
		if len(m.status.Listeners) == 0 {
			b.WriteString(valueStyle.Render("  No listeners connected"))
			b.WriteString("\n")
		}
		for _, l := range m.status.Listeners {
			b.WriteString(valueStyle.Render("  • " + l))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.volume != nil {
		b.WriteString(helpStyle.Render("↑/↓: volume  m: mute  any other key: quit"))
	} else {
		b.WriteString(helpStyle.Render("Press any key to quit"))
	}

	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(name + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "running":
		return runningStyle
	case "stopped":
		return stoppedStyle
	default:
		return valueStyle
	}
}

func describeVoice(v protocol.VoiceInfo) string {
	s := fmt.Sprintf("%9.3f Hz  %-8s level %.2f", v.Frequency, v.Waveform, v.Level)
	if v.Detune != 0 {
		s += fmt.Sprintf("  detune %+g", v.Detune)
	}
	return s
}

// renderedTime formats frames as stream time
func renderedTime(frames uint64, sampleRate int) string {
	if sampleRate <= 0 {
		return fmt.Sprintf("%d frames", frames)
	}
	d := time.Duration(frames) * time.Second / time.Duration(sampleRate)
	return fmt.Sprintf("%s (%d frames)", d.Truncate(100*time.Millisecond), frames)
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
