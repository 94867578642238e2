// ABOUTME: Audio format description and sample conversions
// ABOUTME: Converts float32 synth output into the integer encodings sinks need
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Encoding is the native sample representation a sink consumes
type Encoding int

const (
	Float32 Encoding = iota
	Int16
	Uint16
	Int24
	Int32
)

func (e Encoding) String() string {
	switch e {
	case Float32:
		return "f32"
	case Int16:
		return "i16"
	case Uint16:
		return "u16"
	case Int24:
		return "i24"
	case Int32:
		return "i32"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// ParseEncoding parses the names printed by Encoding.String
func ParseEncoding(s string) (Encoding, error) {
	for _, e := range []Encoding{Float32, Int16, Uint16, Int24, Int32} {
		if e.String() == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown sample encoding: %q", s)
}

// BytesPerSample returns the packed size of one sample
func (e Encoding) BytesPerSample() int {
	switch e {
	case Int16, Uint16:
		return 2
	case Int24:
		return 3
	default:
		return 4
	}
}

// Format describes audio stream format
type Format struct {
	Codec       string // "pcm" or "opus"; empty for local devices
	Encoding    Encoding
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte // For Opus, etc.
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz %dch %s", f.SampleRate, f.Channels, f.Encoding)
}

// FrameBytes returns the packed size of one interleaved frame
func (f Format) FrameBytes() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// FloatToInt16 converts a [-1, 1] sample to signed 16-bit, clamping overs
func FloatToInt16(v float32) int16 {
	return int16(math.Round(float64(clamp(v)) * 32767))
}

// FloatToUint16 converts a [-1, 1] sample to offset-binary 16-bit
func FloatToUint16(v float32) uint16 {
	return uint16(int32(FloatToInt16(v)) + 32768)
}

// FloatTo24Bit converts a [-1, 1] sample to an int32 in 24-bit range
func FloatTo24Bit(v float32) int32 {
	return int32(math.Round(float64(clamp(v)) * Max24Bit))
}

// FloatToInt32 converts a [-1, 1] sample to full-scale signed 32-bit
func FloatToInt32(v float32) int32 {
	return int32(math.Round(float64(clamp(v)) * math.MaxInt32))
}

// Sample is a native representation a float32 sample can be converted to
type Sample interface {
	float32 | int16 | uint16 | int32
}

// Convert maps one float32 sample to S. int32 means 24-bit range, the
// representation the encoders consume.
func Convert[S Sample](v float32) S {
	var out S
	switch p := any(&out).(type) {
	case *float32:
		*p = v
	case *int16:
		*p = FloatToInt16(v)
	case *uint16:
		*p = FloatToUint16(v)
	case *int32:
		*p = FloatTo24Bit(v)
	}
	return out
}

// ConvertBuffer converts src into dst and returns the number of samples
// written, which is the shorter of the two lengths
func ConvertBuffer[S Sample](dst []S, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Convert[S](src[i])
	}
	return n
}

// PutSamples packs src into dst little-endian using enc and returns the
// number of bytes written. dst must hold len(src)*enc.BytesPerSample() bytes.
func PutSamples(dst []byte, src []float32, enc Encoding) int {
	size := enc.BytesPerSample()
	n := min(len(src), len(dst)/size)
	for i := 0; i < n; i++ {
		b := dst[i*size:]
		switch enc {
		case Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(src[i]))
		case Int16:
			binary.LittleEndian.PutUint16(b, uint16(FloatToInt16(src[i])))
		case Uint16:
			binary.LittleEndian.PutUint16(b, FloatToUint16(src[i]))
		case Int24:
			s := SampleTo24Bit(FloatTo24Bit(src[i]))
			b[0], b[1], b[2] = s[0], s[1], s[2]
		case Int32:
			binary.LittleEndian.PutUint32(b, uint32(FloatToInt32(src[i])))
		}
	}
	return n * size
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
