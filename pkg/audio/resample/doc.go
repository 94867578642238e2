// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation on float32 frames and keeps the last frame of
// each chunk, so a stream cut into arbitrary chunks resamples without gaps.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]float32, r.MaxOutputSamples(len(in)))
//	n := r.Resample(in, out)
package resample
