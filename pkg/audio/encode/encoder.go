// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for the PCM and Opus chunk encoders
package encode

import (
	"fmt"

	"github.com/mitchpk/tinysynth/pkg/audio"
)

// Encoder encodes PCM int32 samples in 24-bit range to wire format
type Encoder interface {
	// Encode converts PCM samples to a newly allocated encoded chunk
	Encode(samples []int32) ([]byte, error)

	// EncodeInto writes the encoded chunk into dst and returns the bytes used
	EncodeInto(dst []byte, samples []int32) (int, error)

	// Close releases encoder resources
	Close() error
}

// New picks the encoder for format.Codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "pcm":
		enc, err := NewPCM(format)
		if err != nil {
			return nil, err
		}
		return enc, nil
	case "opus":
		enc, err := NewOpus(format)
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %q", format.Codec)
	}
}
