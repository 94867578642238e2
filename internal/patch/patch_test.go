// ABOUTME: Tests for presets and voice spec parsing
// ABOUTME: Checks preset contents, parse errors, and config assembly
package patch

import (
	"errors"
	"testing"

	"github.com/mitchpk/tinysynth/pkg/synth"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		notes  int
		voices int
	}{
		{"notes", 6, 0},
		{"wide", 0, 6},
		{"full", 6, 6},
		{" FULL ", 6, 6},
		{"none", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if len(p.Notes) != tt.notes || len(p.Voices) != tt.voices {
				t.Errorf("got %d notes, %d voices; want %d, %d", len(p.Notes), len(p.Voices), tt.notes, tt.voices)
			}
		})
	}

	if _, err := Lookup("organ"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("Lookup(organ) = %v, want ErrUnknownPreset", err)
	}
}

func TestWidePresetDetune(t *testing.T) {
	p, err := Lookup("wide")
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		wave   synth.Waveform
		level  float64
		detune float64
	}{
		{synth.Sine, 0.5, 0},
		{synth.Sine, 1, 1},
		{synth.Triangle, 1, -1},
		{synth.Triangle, 1, 1},
		{synth.Triangle, 1, -1},
		{synth.Triangle, 1, 1},
	}
	for i, w := range want {
		v := p.Voices[i]
		if v.Waveform != w.wave || v.Level != w.level || v.Detune != w.detune {
			t.Errorf("voice %d = %+v, want %v level %g detune %g", i, v, w.wave, w.level, w.detune)
		}
	}
}

func TestPresetsReturnsCopy(t *testing.T) {
	ps := Presets()
	if len(ps) != 3 {
		t.Fatalf("got %d presets, want 3", len(ps))
	}
	ps[0].Name = "changed"
	if Presets()[0].Name != "notes" {
		t.Error("Presets exposed internal slice")
	}
}

func TestParseVoice(t *testing.T) {
	tests := []struct {
		spec    string
		want    synth.Voice
		wantErr error
	}{
		{"440:sine", synth.Voice{Frequency: 440, Waveform: synth.Sine, Level: 1}, nil},
		{"220:tri:0.5", synth.Voice{Frequency: 220, Waveform: synth.Triangle, Level: 0.5}, nil},
		{"110:saw:0.25:-1", synth.Voice{Frequency: 110, Waveform: synth.Sawtooth, Level: 0.25, Detune: -1}, nil},
		{"55:square:1:2", synth.Voice{Frequency: 55, Waveform: synth.Square, Level: 1, Detune: 2}, nil},
		{"440", synth.Voice{}, ErrInvalidVoiceSpec},
		{"440:sine:1:0:extra", synth.Voice{}, ErrInvalidVoiceSpec},
		{"abc:sine", synth.Voice{}, ErrInvalidVoiceSpec},
		{"440:noise", synth.Voice{}, synth.ErrInvalidOscillatorConfig},
		{"0:sine", synth.Voice{}, synth.ErrInvalidOscillatorConfig},
		{"-5:sine", synth.Voice{}, synth.ErrInvalidOscillatorConfig},
		{"440:sine:loud", synth.Voice{}, ErrInvalidVoiceSpec},
		{"440:sine:1:left", synth.Voice{}, ErrInvalidVoiceSpec},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseVoice(tt.spec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseNote(t *testing.T) {
	if freq, err := ParseNote(" 380.546 "); err != nil || freq != 380.546 {
		t.Errorf("ParseNote = %g, %v", freq, err)
	}
	if _, err := ParseNote("x"); !errors.Is(err, ErrInvalidVoiceSpec) {
		t.Errorf("ParseNote(x) = %v", err)
	}
	if _, err := ParseNote("0"); !errors.Is(err, synth.ErrInvalidOscillatorConfig) {
		t.Errorf("ParseNote(0) = %v", err)
	}
}

func TestPatchConfig(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		notes   int
		voices  int
		wantErr error
	}{
		{"default preset", Patch{}, 6, 0, nil},
		{"preset plus extras", Patch{Preset: "wide", Notes: []string{"440"}, Voices: []string{"220:sq"}}, 1, 7, nil},
		{"none with note", Patch{Preset: None, Notes: []string{"440"}}, 1, 0, nil},
		{"none alone", Patch{Preset: None}, 0, 0, ErrInvalidVoiceSpec},
		{"unknown preset", Patch{Preset: "organ"}, 0, 0, ErrUnknownPreset},
		{"bad voice", Patch{Voices: []string{"1"}}, 0, 0, ErrInvalidVoiceSpec},
		{"negative gain", Patch{Gain: -1}, 0, 0, synth.ErrInvalidStreamConfig},
		{"spread swallows voice", Patch{Preset: None, Voices: []string{"1:sine:1:1"}, Spread: 2}, 0, 0, synth.ErrInvalidOscillatorConfig},
		{"no spread keeps voice", Patch{Preset: None, Voices: []string{"1:sine:1:1"}, Spread: 2, NoSpread: true}, 0, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.patch.Config(48000, 2)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cfg.Notes) != tt.notes || len(cfg.Voices) != tt.voices {
				t.Errorf("got %d notes, %d voices; want %d, %d", len(cfg.Notes), len(cfg.Voices), tt.notes, tt.voices)
			}
			if cfg.SampleRate != 48000 || cfg.Channels != 2 {
				t.Errorf("stream = %gHz %dch", cfg.SampleRate, cfg.Channels)
			}
		})
	}
}

func TestPatchNoSpread(t *testing.T) {
	cfg, err := Patch{Preset: "wide", NoSpread: true}.Config(48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.NoSpread {
		t.Fatal("NoSpread not carried into the engine config")
	}

	e, err := synth.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if e.Spread() != 0 {
		t.Errorf("Spread() = %v, want 0", e.Spread())
	}
}

func TestPatchConfigDoesNotAliasPreset(t *testing.T) {
	cfg, err := Patch{Preset: "notes", Notes: []string{"1000"}}.Config(48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Notes[0] = 1

	p, _ := Lookup("notes")
	if len(p.Notes) != 6 || p.Notes[0] != 80 {
		t.Errorf("preset modified: %v", p.Notes)
	}
}

func TestDescribe(t *testing.T) {
	cfg, err := Patch{Preset: "full"}.Config(48000, 2)
	if err != nil {
		t.Fatal(err)
	}

	info := Describe(cfg)
	if len(info) != 12 {
		t.Fatalf("got %d entries, want 12", len(info))
	}
	if info[0].Waveform != "sine" || info[0].Frequency != 80 || info[0].Level != 1 {
		t.Errorf("first note = %+v", info[0])
	}
	last := info[11]
	if last.Waveform != "triangle" || last.Frequency != 718.376 || last.Detune != 1 {
		t.Errorf("last voice = %+v", last)
	}
}

func TestFullPresetBuildsDriver(t *testing.T) {
	cfg, err := Patch{Preset: "full"}.Config(48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	d, err := synth.NewDriver(cfg)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	buf := make([]float32, 2*480)
	if err := d.Fill(buf); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	for i, s := range buf {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d = %g outside [-1, 1]", i, s)
		}
	}
}
