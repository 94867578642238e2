// ABOUTME: Parametrized tone voices evaluated from the frame clock
// ABOUTME: Supports any waveform, a level, and a per-channel detune multiplier
package synth

import "math"

// Voice is a tone generator driven by the engine's frame clock instead of
// a phase clock of its own. Detune multiplies the channel offset, so -1 and
// +1 pull a voice in opposite directions on the two sides of the image.
type Voice struct {
	Frequency float64
	Waveform  Waveform
	Level     float64
	Detune    float64
}

// NewVoice creates a voice at full level with no detune
func NewVoice(frequency float64, waveform Waveform) (Voice, error) {
	v := Voice{Frequency: frequency, Waveform: waveform, Level: 1.0}
	if err := v.validate(0); err != nil {
		return Voice{}, err
	}
	return v, nil
}

// validate rejects voices whose detuned frequency could reach zero
func (v Voice) validate(spread float64) error {
	if !(v.Frequency > 0) || math.IsInf(v.Frequency, 0) {
		return oscillatorError("frequency", v.Frequency)
	}
	if v.Waveform < Sine || v.Waveform > Sawtooth {
		return oscillatorError("waveform", float64(v.Waveform))
	}
	if math.IsNaN(v.Level) || math.IsInf(v.Level, 0) {
		return oscillatorError("level", v.Level)
	}
	if math.IsNaN(v.Detune) || math.IsInf(v.Detune, 0) {
		return oscillatorError("detune", v.Detune)
	}
	if v.Frequency-math.Abs(v.Detune*spread) <= 0 {
		return oscillatorError("detuned frequency", v.Frequency-math.Abs(v.Detune*spread))
	}
	return nil
}

func (v Voice) sample(frameClock, sampleRate, offset float64) float64 {
	return Tone(v.Frequency+v.Detune*offset, frameClock, sampleRate, v.Waveform) * v.Level
}
