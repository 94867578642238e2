// ABOUTME: Named presets and command-line voice specs
// ABOUTME: Turns a preset name plus extra notes and voices into a synth.Config
package patch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchpk/tinysynth/pkg/protocol"
	"github.com/mitchpk/tinysynth/pkg/synth"
)

var (
	ErrUnknownPreset    = errors.New("unknown preset")
	ErrInvalidVoiceSpec = errors.New("invalid voice spec")
)

// None selects no preset; only explicit notes and voices play
const None = "none"

// DefaultPreset plays when nothing else is asked for
const DefaultPreset = "notes"

// Preset is a named bank of notes and voices
type Preset struct {
	Name        string
	Description string
	Notes       []float64
	Voices      []synth.Voice
}

// chord is shared by every stock preset
var chord = []float64{80, 160, 380.546, 479.458, 570.175, 718.376}

var presets = []Preset{
	{
		Name:        "notes",
		Description: "six phase-clocked sines, identical on every channel",
		Notes:       chord,
	},
	{
		Name:        "wide",
		Description: "the same chord as detuned sine and triangle voices",
		Voices: []synth.Voice{
			{Frequency: chord[0], Waveform: synth.Sine, Level: 0.5},
			{Frequency: chord[1], Waveform: synth.Sine, Level: 1, Detune: 1},
			{Frequency: chord[2], Waveform: synth.Triangle, Level: 1, Detune: -1},
			{Frequency: chord[3], Waveform: synth.Triangle, Level: 1, Detune: 1},
			{Frequency: chord[4], Waveform: synth.Triangle, Level: 1, Detune: -1},
			{Frequency: chord[5], Waveform: synth.Triangle, Level: 1, Detune: 1},
		},
	},
}

func init() {
	notes, wide := presets[0], presets[1]
	presets = append(presets, Preset{
		Name:        "full",
		Description: "notes and wide layered",
		Notes:       notes.Notes,
		Voices:      wide.Voices,
	})
}

// Presets returns every preset in display order
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Lookup finds a preset by name. None returns an empty preset.
func Lookup(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == None {
		return Preset{Name: None}, nil
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// ParseNote parses a sine oscillator frequency in Hz
func ParseNote(s string) (float64, error) {
	freq, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: note %q is not a number", ErrInvalidVoiceSpec, s)
	}
	if _, err := synth.NewOscillator(freq); err != nil {
		return 0, err
	}
	return freq, nil
}

// ParseVoice parses freq:wave[:level[:detune]], e.g. "220:tri:0.5:-1".
// Level defaults to 1 and detune to 0.
func ParseVoice(spec string) (synth.Voice, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return synth.Voice{}, fmt.Errorf("%w: %q, want freq:wave[:level[:detune]]", ErrInvalidVoiceSpec, spec)
	}

	freq, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return synth.Voice{}, fmt.Errorf("%w: frequency %q", ErrInvalidVoiceSpec, parts[0])
	}
	wave, err := synth.ParseWaveform(parts[1])
	if err != nil {
		return synth.Voice{}, err
	}

	v, err := synth.NewVoice(freq, wave)
	if err != nil {
		return synth.Voice{}, err
	}

	if len(parts) > 2 {
		if v.Level, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return synth.Voice{}, fmt.Errorf("%w: level %q", ErrInvalidVoiceSpec, parts[2])
		}
	}
	if len(parts) > 3 {
		if v.Detune, err = strconv.ParseFloat(parts[3], 64); err != nil {
			return synth.Voice{}, fmt.Errorf("%w: detune %q", ErrInvalidVoiceSpec, parts[3])
		}
	}
	return v, nil
}

// Patch is what the command line asks to play
type Patch struct {
	Preset string
	Notes  []string
	Voices []string
	Gain   float64
	Spread float64

	// NoSpread plays every channel identically
	NoSpread bool
}

// Config builds the synth config for a negotiated stream. Extra notes and
// voices are appended to the preset's.
func (p Patch) Config(sampleRate float64, channels int) (synth.Config, error) {
	name := p.Preset
	if name == "" {
		name = DefaultPreset
	}
	preset, err := Lookup(name)
	if err != nil {
		return synth.Config{}, err
	}

	cfg := synth.Config{
		SampleRate: sampleRate,
		Channels:   channels,
		Notes:      append([]float64(nil), preset.Notes...),
		Voices:     append([]synth.Voice(nil), preset.Voices...),
		Gain:       p.Gain,
		Spread:     p.Spread,
		NoSpread:   p.NoSpread,
	}

	for _, s := range p.Notes {
		freq, err := ParseNote(s)
		if err != nil {
			return synth.Config{}, err
		}
		cfg.Notes = append(cfg.Notes, freq)
	}
	for _, s := range p.Voices {
		v, err := ParseVoice(s)
		if err != nil {
			return synth.Config{}, err
		}
		cfg.Voices = append(cfg.Voices, v)
	}

	if len(cfg.Notes)+len(cfg.Voices) == 0 {
		return synth.Config{}, fmt.Errorf("%w: preset %q with no extra notes or voices plays nothing", ErrInvalidVoiceSpec, name)
	}

	if err := cfg.Validate(); err != nil {
		return synth.Config{}, err
	}
	return cfg, nil
}

// Describe lists a config's notes and voices for status reporting. Notes
// show as full-level sines.
func Describe(cfg synth.Config) []protocol.VoiceInfo {
	out := make([]protocol.VoiceInfo, 0, len(cfg.Notes)+len(cfg.Voices))
	for _, freq := range cfg.Notes {
		out = append(out, protocol.VoiceInfo{
			Frequency: freq,
			Waveform:  synth.Sine.String(),
			Level:     1,
		})
	}
	for _, v := range cfg.Voices {
		out = append(out, protocol.VoiceInfo{
			Frequency: v.Frequency,
			Waveform:  v.Waveform.String(),
			Level:     v.Level,
			Detune:    v.Detune,
		})
	}
	return out
}
