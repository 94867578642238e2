// ABOUTME: Tests for session orchestration
// ABOUTME: Runs full sessions against the headless and network sinks
package app

import (
	"bytes"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mitchpk/tinysynth/internal/patch"
	"github.com/mitchpk/tinysynth/internal/stream"
	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
	"github.com/mitchpk/tinysynth/pkg/synth"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	var out syncBuffer
	s, err := New(Config{
		Backend: "null",
		Options: output.Options{BufferMs: 5, Writer: &out},
		Format:  audio.Format{SampleRate: 8000, Channels: 2, Encoding: audio.Int16},
		Patch:   patch.Patch{Preset: "wide"},
		Volume:  50,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := s.Driver().State(); got != synth.Idle {
		t.Errorf("state before Start = %v", got)
	}
	if s.Volume().GetVolume() != 50 {
		t.Errorf("volume = %d, want 50", s.Volume().GetVolume())
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "frames", func() bool { return s.Driver().Frames() >= 400 })

	st := s.Status()
	if st.Backend != "null" || st.State != "running" || st.Preset != "wide" {
		t.Errorf("status = %+v", st)
	}
	if len(st.Voices) != 6 {
		t.Errorf("status voices = %d, want 6", len(st.Voices))
	}
	if st.Format.Encoding != audio.Int16 || st.Format.SampleRate != 8000 {
		t.Errorf("format = %s", st.Format)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := s.Driver().State(); got != synth.Stopped {
		t.Errorf("state after Close = %v", got)
	}
	if out.Len() == 0 {
		t.Error("nothing written to the sink")
	}
}

func TestSessionDefaultsPreset(t *testing.T) {
	s, err := New(Config{Backend: "null"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	state := s.ServerState()
	if state.Preset != patch.DefaultPreset {
		t.Errorf("preset = %q", state.Preset)
	}
	if state.SampleRate != output.DefaultSampleRate || state.Channels != output.DefaultChannels {
		t.Errorf("stream = %dHz %dch", state.SampleRate, state.Channels)
	}
	if state.State != "idle" || len(state.Voices) != 6 {
		t.Errorf("state = %+v", state)
	}
}

func TestSessionVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		want   int
	}{
		{"zero is silent", 0, 0},
		{"negative keeps full volume", -1, 100},
		{"in range", 35, 35},
		{"above range clamps", 150, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Config{Backend: "null", Volume: tt.volume})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer s.Close()

			if got := s.Volume().GetVolume(); got != tt.want {
				t.Errorf("GetVolume() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"unknown backend", Config{Backend: "alsa-direct"}, output.ErrUnknownBackend},
		{"unknown preset", Config{Backend: "null", Patch: patch.Patch{Preset: "organ"}}, patch.ErrUnknownPreset},
		{"bad voice", Config{Backend: "null", Patch: patch.Patch{Voices: []string{"0:sine"}}}, synth.ErrInvalidOscillatorConfig},
		{"bad gain", Config{Backend: "null", Patch: patch.Patch{Gain: -2}}, synth.ErrInvalidStreamConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.config)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if s != nil {
				t.Error("session returned with error")
			}
		})
	}
}

func TestSessionStream(t *testing.T) {
	s, err := New(Config{
		Backend: StreamBackend,
		Format:  audio.Format{SampleRate: 16000, Channels: 2},
		Stream:  stream.Config{Host: "127.0.0.1", RandomPort: true, ChunkMs: 10},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	srv, ok := s.Sink().(*stream.Server)
	if !ok {
		t.Fatalf("sink is %T", s.Sink())
	}
	if srv.Addr() == "" {
		t.Error("stream sink not listening")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "frames", func() bool { return srv.Frames() > 0 })

	st := s.Status()
	if st.Backend != StreamBackend || st.Listeners != nil {
		t.Errorf("status = %+v", st)
	}
}

func TestBackendsIncludeStream(t *testing.T) {
	names := Backends()
	for _, want := range []string{"null", "oto", StreamBackend} {
		if !slices.Contains(names, want) {
			t.Errorf("Backends() = %v, missing %s", names, want)
		}
	}
	if !slices.IsSorted(names) {
		t.Errorf("Backends() not sorted: %v", names)
	}
}
