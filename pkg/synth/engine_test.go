// ABOUTME: Tests for the mix engine
// ABOUTME: Covers config validation, channel offsets, determinism and averaging
package synth

import (
	"errors"
	"math"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
		field   string
	}{
		{
			name:   "valid notes",
			config: Config{SampleRate: 48000, Channels: 2, Notes: []float64{440}},
		},
		{
			name:   "valid voices",
			config: Config{SampleRate: 48000, Channels: 1, Voices: []Voice{{Frequency: 160, Waveform: Triangle, Level: 1, Detune: 1}}},
		},
		{
			name:    "zero channels",
			config:  Config{SampleRate: 48000, Channels: 0, Notes: []float64{440}},
			wantErr: ErrInvalidStreamConfig,
			field:   "channels",
		},
		{
			name:    "zero sample rate",
			config:  Config{SampleRate: 0, Channels: 2, Notes: []float64{440}},
			wantErr: ErrInvalidStreamConfig,
			field:   "sample rate",
		},
		{
			name:    "negative sample rate",
			config:  Config{SampleRate: -48000, Channels: 2, Notes: []float64{440}},
			wantErr: ErrInvalidStreamConfig,
			field:   "sample rate",
		},
		{
			name:    "negative gain",
			config:  Config{SampleRate: 48000, Channels: 2, Notes: []float64{440}, Gain: -1},
			wantErr: ErrInvalidStreamConfig,
			field:   "gain",
		},
		{
			name:    "zero frequency note",
			config:  Config{SampleRate: 48000, Channels: 2, Notes: []float64{440, 0}},
			wantErr: ErrInvalidOscillatorConfig,
			field:   "frequency",
		},
		{
			name:    "negative frequency note",
			config:  Config{SampleRate: 48000, Channels: 2, Notes: []float64{-5}},
			wantErr: ErrInvalidOscillatorConfig,
			field:   "frequency",
		},
		{
			name:    "empty bank",
			config:  Config{SampleRate: 48000, Channels: 2},
			wantErr: ErrInvalidOscillatorConfig,
			field:   "voice count",
		},
		{
			name:    "detune below zero hertz",
			config:  Config{SampleRate: 48000, Channels: 2, Voices: []Voice{{Frequency: 0.05, Level: 1, Detune: -1}}},
			wantErr: ErrInvalidOscillatorConfig,
			field:   "detuned frequency",
		},
		{
			name:    "unknown waveform",
			config:  Config{SampleRate: 48000, Channels: 2, Voices: []Voice{{Frequency: 100, Waveform: Waveform(7), Level: 1}}},
			wantErr: ErrInvalidOscillatorConfig,
			field:   "waveform",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestNewEngineDefaults(t *testing.T) {
	e, err := NewEngine(Config{SampleRate: 48000, Channels: 2, Notes: []float64{440}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.Gain() != DefaultGain {
		t.Errorf("expected gain %v, got %v", DefaultGain, e.Gain())
	}
	if e.Spread() != DefaultSpread {
		t.Errorf("expected spread %v, got %v", DefaultSpread, e.Spread())
	}
	if e.FrameClock() != 0 {
		t.Errorf("expected frame clock 0, got %v", e.FrameClock())
	}
	if e.VoiceCount() != 1 {
		t.Errorf("expected 1 voice, got %d", e.VoiceCount())
	}
}

func TestChannelOffset(t *testing.T) {
	tests := []struct {
		channel  int
		expected float64
	}{
		{0, -0.1},
		{1, 0.1},
		{2, 0.1},
		{7, 0.1},
	}

	for _, tt := range tests {
		if got := ChannelOffset(tt.channel, 0.1); got != tt.expected {
			t.Errorf("channel %d: expected %v, got %v", tt.channel, tt.expected, got)
		}
	}
}

func TestStepAdvancesOncePerFrame(t *testing.T) {
	e, _ := NewEngine(Config{SampleRate: 48000, Channels: 4, Notes: []float64{440, 880}})

	e.Step()
	for ch := 0; ch < 4; ch++ {
		e.Mix(ch)
	}

	if e.FrameClock() != 1 {
		t.Errorf("expected frame clock 1, got %v", e.FrameClock())
	}
	for _, o := range e.Oscillators() {
		if o.Clock() != 1 {
			t.Errorf("freq %v: expected clock 1, got %v", o.Frequency(), o.Clock())
		}
	}
}

func TestMixIsDeterministic(t *testing.T) {
	e, _ := NewEngine(Config{
		SampleRate: 44100,
		Channels:   2,
		Notes:      []float64{80, 160, 380.546},
		Voices: []Voice{
			{Frequency: 479.458, Waveform: Triangle, Level: 1, Detune: 1},
			{Frequency: 570.175, Waveform: Sawtooth, Level: 0.5, Detune: -1},
		},
	})

	for i := 0; i < 1234; i++ {
		e.Step()
	}

	for ch := 0; ch < 2; ch++ {
		first := e.Mix(ch)
		for i := 0; i < 10; i++ {
			if again := e.Mix(ch); math.Float64bits(again) != math.Float64bits(first) {
				t.Fatalf("channel %d: %v != %v", ch, again, first)
			}
		}
	}
}

func TestMixAveragesByVoiceCount(t *testing.T) {
	notes := []float64{80, 160, 380.546, 479.458, 570.175, 718.376}
	e, _ := NewEngine(Config{SampleRate: 48000, Channels: 1, Notes: notes})

	for i := 0; i < 100; i++ {
		e.Step()
	}

	var sum float64
	for _, o := range e.Oscillators() {
		sum += o.Sample(48000)
	}
	expected := sum * DefaultGain / float64(len(notes))

	if got := e.Mix(0); got != expected {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestSingleNoteStaysInRange(t *testing.T) {
	e, _ := NewEngine(Config{SampleRate: 48000, Channels: 2, Notes: []float64{440}})

	for i := 0; i < 48000; i++ {
		e.Step()
		for ch := 0; ch < 2; ch++ {
			if v := e.Mix(ch); math.Abs(v) > DefaultGain {
				t.Fatalf("frame %d channel %d: %v exceeds gain", i, ch, v)
			}
		}
	}
}

func TestVoiceDetuneSeparatesChannels(t *testing.T) {
	voice := Voice{Frequency: 440, Waveform: Sine, Level: 1, Detune: 1}
	e, _ := NewEngine(Config{SampleRate: 48000, Channels: 2, Voices: []Voice{voice}})

	e.Step()

	left := e.Mix(0)
	right := e.Mix(1)

	lo, hi := ChannelOffset(0, DefaultSpread), ChannelOffset(1, DefaultSpread)
	expectedLeft := Tone(440+lo, 1, 48000, Sine) * DefaultGain
	expectedRight := Tone(440+hi, 1, 48000, Sine) * DefaultGain

	if left != expectedLeft {
		t.Errorf("left: expected %v, got %v", expectedLeft, left)
	}
	if right != expectedRight {
		t.Errorf("right: expected %v, got %v", expectedRight, right)
	}
	if left == right {
		t.Error("expected detuned channels to differ")
	}
}

func TestNoSpreadKeepsChannelsEqual(t *testing.T) {
	tests := []struct {
		name   string
		spread float64
	}{
		{"zero spread", 0},
		{"spread ignored", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			voice := Voice{Frequency: 440, Waveform: Triangle, Level: 1, Detune: -1}
			e, err := NewEngine(Config{
				SampleRate: 48000,
				Channels:   2,
				Voices:     []Voice{voice},
				Spread:     tt.spread,
				NoSpread:   true,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if e.Spread() != 0 {
				t.Errorf("expected spread 0, got %v", e.Spread())
			}

			for i := 0; i < 100; i++ {
				e.Step()
				if l, r := e.Mix(0), e.Mix(1); l != r {
					t.Fatalf("frame %d: channels differ: %v vs %v", i, l, r)
				}
			}
		})
	}
}
