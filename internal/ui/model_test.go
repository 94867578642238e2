// ABOUTME: Tests for the status TUI model
// ABOUTME: Tests polling, key handling, and rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
	"github.com/mitchpk/tinysynth/pkg/protocol"
)

func sampleStatus() Status {
	return Status{
		Backend: "null",
		Format:  audio.Format{Encoding: audio.Float32, SampleRate: 48000, Channels: 2, BitDepth: 32},
		Preset:  "wide",
		State:   "running",
		Frames:  96000,
		Voices: []protocol.VoiceInfo{
			{Frequency: 80, Waveform: "sine", Level: 0.5},
			{Frequency: 380.546, Waveform: "triangle", Level: 1, Detune: -1},
		},
	}
}

func TestNewModelPollsOnce(t *testing.T) {
	calls := 0
	m := NewModel(func() Status {
		calls++
		return sampleStatus()
	}, nil)

	if calls != 1 {
		t.Errorf("poll called %d times, want 1", calls)
	}
	if m.status.Backend != "null" {
		t.Errorf("status not applied: %+v", m.status)
	}
}

func TestTickRefreshesStatus(t *testing.T) {
	frames := uint64(0)
	m := NewModel(func() Status {
		frames += 480
		s := sampleStatus()
		s.Frames = frames
		return s
	}, nil)

	updated, cmd := m.Update(tickMsg{})
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if got := updated.(Model).status.Frames; got != 960 {
		t.Errorf("Frames = %d, want 960", got)
	}
}

func TestStatusMsg(t *testing.T) {
	m := NewModel(nil, nil)
	updated, _ := m.Update(StatusMsg(sampleStatus()))
	if updated.(Model).status.Preset != "wide" {
		t.Error("StatusMsg not applied")
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name       string
		key        tea.KeyMsg
		withVolume bool
		quits      bool
		volume     int
		muted      bool
	}{
		{"q quits", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true, true, 100, false},
		{"enter quits", tea.KeyMsg{Type: tea.KeyEnter}, true, true, 100, false},
		{"space quits", tea.KeyMsg{Type: tea.KeySpace}, true, true, 100, false},
		{"ctrl+c quits", tea.KeyMsg{Type: tea.KeyCtrlC}, true, true, 100, false},
		{"down lowers volume", tea.KeyMsg{Type: tea.KeyDown}, true, false, 95, false},
		{"up clamps", tea.KeyMsg{Type: tea.KeyUp}, true, false, 100, false},
		{"m mutes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")}, true, false, 100, true},
		{"m quits without volume", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")}, false, true, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pump := output.NewPump()
			var vol output.VolumeControl
			if tt.withVolume {
				vol = pump
			}
			m := NewModel(sampleStatus, vol)

			updated, cmd := m.Update(tt.key)
			model := updated.(Model)

			if model.quitting != tt.quits {
				t.Errorf("quitting = %v, want %v", model.quitting, tt.quits)
			}
			if tt.quits && cmd == nil {
				t.Error("quit key returned no command")
			}
			if !tt.quits && cmd != nil {
				t.Error("volume key returned a command")
			}
			if pump.GetVolume() != tt.volume || pump.IsMuted() != tt.muted {
				t.Errorf("volume = %d muted = %v, want %d %v", pump.GetVolume(), pump.IsMuted(), tt.volume, tt.muted)
			}
		})
	}
}

func TestView(t *testing.T) {
	m := NewModel(sampleStatus, output.NewPump())
	view := m.View()

	for _, want := range []string{"tinysynth", "null", "48000Hz 2ch f32", "wide", "running", "2s", "Voices (2)", "triangle", "detune -1", "100%"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "Listeners") {
		t.Error("listeners shown for a local sink")
	}
}

func TestViewStreamListeners(t *testing.T) {
	m := NewModel(func() Status {
		s := sampleStatus()
		s.Backend = "stream"
		s.Listeners = []string{"kitchen (pcm 24-bit)"}
		return s
	}, nil)

	view := m.View()
	if !strings.Contains(view, "Listeners (1)") || !strings.Contains(view, "kitchen") {
		t.Errorf("listeners missing:\n%s", view)
	}
	if !strings.Contains(view, "Press any key to quit") {
		t.Error("help text should not mention volume without a control")
	}
}

func TestViewQuitting(t *testing.T) {
	m := NewModel(nil, nil)
	m.quitting = true
	if got := m.View(); got != "Stopping...\n" {
		t.Errorf("View() = %q", got)
	}
}

func TestRenderedTime(t *testing.T) {
	tests := []struct {
		frames uint64
		rate   int
		want   string
	}{
		{0, 48000, "0s (0 frames)"},
		{72000, 48000, "1.5s (72000 frames)"},
		{100, 0, "100 frames"},
	}
	for _, tt := range tests {
		if got := renderedTime(tt.frames, tt.rate); got != tt.want {
			t.Errorf("renderedTime(%d, %d) = %q, want %q", tt.frames, tt.rate, got, tt.want)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "░░░░░░░░░░"},
		{50, "█████░░░░░"},
		{100, "██████████"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.value, 100, 10); got != tt.want {
			t.Errorf("renderBar(%d) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
