// ABOUTME: Opus audio encoder
// ABOUTME: Encodes fixed 20ms frames of int32 samples to Opus packets
package encode

import (
	"fmt"

	"github.com/mitchpk/tinysynth/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// MaxOpusPacket is the largest packet EncodeInto will produce
const MaxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
	pcm        []int16
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format) (*OpusEncoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	frameSize := format.SampleRate / 50 // 20ms frame

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  frameSize,
		pcm:        make([]int16, frameSize*format.Channels),
	}, nil
}

// FrameSamples returns the interleaved sample count of one 20ms frame
func (e *OpusEncoder) FrameSamples() int {
	return e.frameSize * e.channels
}

// Encode converts one frame of int32 samples to an Opus packet
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	data := make([]byte, MaxOpusPacket)
	n, err := e.EncodeInto(data, samples)
	if err != nil {
		return nil, err
	}
	return data[:n], nil
}

// EncodeInto encodes exactly one frame into dst
func (e *OpusEncoder) EncodeInto(dst []byte, samples []int32) (int, error) {
	if len(samples) != e.FrameSamples() {
		return 0, fmt.Errorf("opus frame must be %d samples, got %d", e.FrameSamples(), len(samples))
	}
	for i, sample := range samples {
		e.pcm[i] = audio.SampleToInt16(sample)
	}

	n, err := e.encoder.Encode(e.pcm, dst)
	if err != nil {
		return 0, fmt.Errorf("opus encode error: %w", err)
	}
	return n, nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
