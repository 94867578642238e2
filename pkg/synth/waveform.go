// ABOUTME: Periodic waveform functions
// ABOUTME: Maps frequency and elapsed frames to a sample in [-1, 1]
package synth

import (
	"fmt"
	"math"
	"strings"
)

// Waveform selects the periodic function evaluated by Tone
type Waveform int

const (
	Sine Waveform = iota
	Square
	Triangle
	Sawtooth
)

var waveformNames = [...]string{
	Sine:     "sine",
	Square:   "square",
	Triangle: "triangle",
	Sawtooth: "sawtooth",
}

// Waveforms lists every supported waveform in declaration order
func Waveforms() []Waveform {
	return []Waveform{Sine, Square, Triangle, Sawtooth}
}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
	return waveformNames[w]
}

// ParseWaveform accepts a waveform name or its short form (sin, sq, tri, saw)
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "sin":
		return Sine, nil
	case "square", "sq":
		return Square, nil
	case "triangle", "tri":
		return Triangle, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	}
	return 0, fmt.Errorf("%w: unknown waveform %q", ErrInvalidOscillatorConfig, s)
}

// Tone evaluates a waveform at elapsedFrames frames into the stream.
//
// The result depends only on its arguments, so identical inputs give
// bit-identical output. An unknown kind yields silence.
func Tone(frequency, elapsedFrames, sampleRate float64, kind Waveform) float64 {
	period := elapsedFrames / sampleRate
	phase := frequency * period

	switch kind {
	case Sine:
		return math.Sin(2 * math.Pi * phase)
	case Square:
		if math.Sin(2*math.Pi*phase) > 0 {
			return 1.0
		}
		return -1.0
	case Triangle:
		return math.Asin(math.Sin(2*math.Pi*phase)) * (2 / math.Pi)
	case Sawtooth:
		return (math.Mod(phase, 1.0) - 0.5) * 2.0
	}
	return 0
}
