// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and the float32 to native sample conversions
// Package audio provides the format description and sample conversions
// shared by the output sinks and encoders.
//
// The synth renders float32 samples in [-1, 1]. Sinks that cannot take
// float32 convert into one of the native encodings:
//   - Int16 and Uint16 (offset binary)
//   - Int24, held in an int32 and packed to 3 bytes on the wire
//   - Int32 full scale
//
// Example:
//
//	format := audio.Format{
//	    Encoding:   audio.Int16,
//	    SampleRate: 48000,
//	    Channels:   2,
//	}
//
//	buf := make([]byte, len(samples)*format.Encoding.BytesPerSample())
//	audio.PutSamples(buf, samples, format.Encoding)
package audio
