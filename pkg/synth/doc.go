// ABOUTME: Real-time oscillator synthesis core
// ABOUTME: Waveforms, oscillator bank, mix engine and the callback driver
// Package synth generates a continuous multi-channel waveform stream from a
// bank of oscillators, one frame at a time, inside an audio sink callback.
//
// The package is organised leaf-first:
//   - Tone: pure waveform function (sine, square, triangle, sawtooth)
//   - Oscillator: one voice with a wrapped per-frame phase clock
//   - Voice: a parametrized tone evaluated against the frame clock, detuned
//     per channel at mix time
//   - Engine: owns the bank and the frame clock, mixes one sample per channel
//   - Driver: fills interleaved sink buffers frame by frame
//
// Driver.Fill allocates nothing, takes no locks and never logs, so it can be
// called directly from a device callback. Configuration errors are returned
// by the constructors before any stream starts.
//
// Example:
//
//	driver, err := synth.NewDriver(synth.Config{
//	    SampleRate: 48000,
//	    Channels:   2,
//	    Notes:      []float64{80, 160, 380.546},
//	})
//	err = driver.Start()
//	err = driver.Fill(buf) // len(buf) must be a multiple of Channels
package synth
