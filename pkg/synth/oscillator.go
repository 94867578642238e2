// ABOUTME: Single oscillator with a wrapped per-frame phase clock
// ABOUTME: Advances once per output frame and yields a sine contribution
package synth

import "math"

// Oscillator is one sine voice. Its clock counts frames since the last cycle
// boundary rather than accumulating an angle, which keeps it small.
type Oscillator struct {
	frequency float64
	clock     float64
}

// NewOscillator creates an oscillator at frequency Hz with its clock at zero
func NewOscillator(frequency float64) (Oscillator, error) {
	if !(frequency > 0) || math.IsInf(frequency, 0) {
		return Oscillator{}, oscillatorError("frequency", frequency)
	}
	return Oscillator{frequency: frequency}, nil
}

// Advance moves the clock forward one frame, wrapping at the period.
// After the first call 0 <= clock < sampleRate/frequency.
func (o *Oscillator) Advance(sampleRate float64) {
	o.clock = math.Mod(o.clock+1.0, sampleRate/o.frequency)
}

// Sample returns the oscillator's value at its current clock
func (o Oscillator) Sample(sampleRate float64) float64 {
	return math.Sin(o.frequency * (o.clock / sampleRate) * (2 * math.Pi))
}

// Frequency returns the oscillator frequency in Hz
func (o Oscillator) Frequency() float64 { return o.frequency }

// Clock returns frames elapsed since the last cycle boundary
func (o Oscillator) Clock() float64 { return o.clock }

// Period returns the cycle length in frames at sampleRate
func (o Oscillator) Period(sampleRate float64) float64 {
	return sampleRate / o.frequency
}
