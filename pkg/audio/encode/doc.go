// ABOUTME: Audio encoder package for encoding PCM to wire formats
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode provides the chunk encoders used by the network sink.
//
// Supports: PCM (16-bit and 24-bit little-endian), Opus (20ms frames)
//
// All encoders accept int32 samples in 24-bit range.
//
// Example:
//
//	encoder, err := encode.New(format)
//	n, err := encoder.EncodeInto(buf, samples)
package encode
