// ABOUTME: Audio output package for playing synthesized audio
// ABOUTME: Provides the Sink interface, a backend registry and the device backends
// Package output provides audio sinks.
//
// A Sink negotiates a format with its device, then pulls interleaved
// float32 buffers from a Source on the device's own callback goroutine and
// converts them to the device's native encoding. Backends:
//   - oto, malgo, pulse, beep: local playback
//   - portaudio: local playback, needs -tags portaudio
//   - null, stdout: headless, real-time paced, any encoding
//
// Example:
//
//	sink, err := output.New("malgo", output.Options{BufferMs: 20})
//	format, err := sink.Open(audio.Format{Channels: 2})
//	driver, err := synth.NewDriver(synth.Config{
//	    SampleRate: float64(format.SampleRate),
//	    Channels:   format.Channels,
//	    Notes:      []float64{440},
//	})
//	driver.Start()
//	err = sink.Start(driver)
package output
