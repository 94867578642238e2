// ABOUTME: Tests for waveform functions
// ABOUTME: Checks periodicity, bounds and exact values of each waveform
package synth

import (
	"errors"
	"math"
	"testing"
)

func TestToneKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		freq     float64
		elapsed  float64
		rate     float64
		kind     Waveform
		expected float64
	}{
		{"sine at zero", 1, 0, 4, Sine, 0},
		{"sine at quarter", 1, 1, 4, Sine, 1},
		{"square at zero ties low", 1, 0, 4, Square, -1},
		{"square first half", 1, 1, 4, Square, 1},
		{"square second half", 1, 3, 4, Square, -1},
		{"triangle at quarter", 1, 1, 4, Triangle, 1},
		{"triangle at zero", 1, 0, 4, Triangle, 0},
		{"sawtooth at zero", 1, 0, 4, Sawtooth, -1},
		{"sawtooth at half", 1, 2, 4, Sawtooth, 0},
		{"sawtooth at quarter", 1, 1, 4, Sawtooth, -0.5},
		{"unknown kind is silent", 1, 1, 4, Waveform(42), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Tone(tt.freq, tt.elapsed, tt.rate, tt.kind)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSinePeriodicity(t *testing.T) {
	rates := []float64{44100, 48000, 96000}
	freqs := []float64{80, 440, 718.376, 1000}

	for _, rate := range rates {
		for _, freq := range freqs {
			period := rate / freq
			for elapsed := 0.0; elapsed < 2000; elapsed += 37 {
				a := Tone(freq, elapsed, rate, Sine)
				b := Tone(freq, elapsed+period, rate, Sine)
				if math.Abs(a-b) > 1e-9 {
					t.Fatalf("rate=%v freq=%v t=%v: %v != %v", rate, freq, elapsed, a, b)
				}
			}
		}
	}
}

func TestTriangleAndSawtoothBounds(t *testing.T) {
	freqs := []float64{1, 80, 380.546, 440, 12345.6}

	for _, kind := range []Waveform{Triangle, Sawtooth} {
		for _, freq := range freqs {
			for elapsed := 0.0; elapsed < 48000; elapsed += 0.5 {
				v := Tone(freq, elapsed, 48000, kind)
				if v < -1.0 || v > 1.0 {
					t.Fatalf("%s freq=%v t=%v out of range: %v", kind, freq, elapsed, v)
				}
			}
		}
	}
}

func TestSquareIsBinary(t *testing.T) {
	for _, freq := range []float64{80, 440, 570.175} {
		for elapsed := 0.0; elapsed < 10000; elapsed++ {
			v := Tone(freq, elapsed, 44100, Square)
			if v != 1.0 && v != -1.0 {
				t.Fatalf("freq=%v t=%v: expected +1 or -1, got %v", freq, elapsed, v)
			}
		}
	}
}

func TestToneIsReproducible(t *testing.T) {
	for _, kind := range Waveforms() {
		a := Tone(479.458, 12345, 48000, kind)
		b := Tone(479.458, 12345, 48000, kind)
		if math.Float64bits(a) != math.Float64bits(b) {
			t.Errorf("%s: %v and %v differ", kind, a, b)
		}
	}
}

func TestParseWaveform(t *testing.T) {
	tests := []struct {
		input    string
		expected Waveform
		wantErr  bool
	}{
		{"sine", Sine, false},
		{"SIN", Sine, false},
		{"square", Square, false},
		{"sq", Square, false},
		{" tri ", Triangle, false},
		{"sawtooth", Sawtooth, false},
		{"saw", Sawtooth, false},
		{"noise", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseWaveform(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOscillatorConfig) {
					t.Errorf("expected ErrInvalidOscillatorConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestWaveformString(t *testing.T) {
	for _, w := range Waveforms() {
		parsed, err := ParseWaveform(w.String())
		if err != nil || parsed != w {
			t.Errorf("String() of %d does not parse back: %q", int(w), w.String())
		}
	}
	if got := Waveform(9).String(); got != "Waveform(9)" {
		t.Errorf("expected Waveform(9), got %s", got)
	}
}
