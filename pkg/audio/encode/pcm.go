// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 16-bit or 24-bit PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/mitchpk/tinysynth/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (*PCMEncoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// EncodedSize returns the byte length of n encoded samples
func (e *PCMEncoder) EncodedSize(n int) int {
	return n * e.bitDepth / 8
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	output := make([]byte, e.EncodedSize(len(samples)))
	n, err := e.EncodeInto(output, samples)
	return output[:n], err
}

// EncodeInto writes little-endian PCM into dst
func (e *PCMEncoder) EncodeInto(dst []byte, samples []int32) (int, error) {
	size := e.EncodedSize(len(samples))
	if len(dst) < size {
		return 0, fmt.Errorf("pcm buffer too small: need %d bytes, have %d", size, len(dst))
	}

	if e.bitDepth == 24 {
		for i, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			dst[i*3] = b[0]
			dst[i*3+1] = b[1]
			dst[i*3+2] = b[2]
		}
		return size, nil
	}

	for i, sample := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	return size, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
