// ABOUTME: Stream protocol message type definitions
// ABOUTME: JSON control messages plus the binary audio chunk framing
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Version is the protocol version sent in hello messages
const Version = 1

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeStreamStart   = "stream/start"
	TypeStreamEnd     = "stream/end"
	TypeServerState   = "server/state"
	TypeClientTime    = "client/time"
	TypeServerTime    = "server/time"
	TypeClientGoodbye = "client/goodbye"
	TypeServerError   = "server/error"
)

const (
	// BinaryMessageHeaderSize is the size of binary message header (type byte + timestamp)
	BinaryMessageHeaderSize = 1 + 8

	// AudioChunkMessageType is the binary message type ID for audio chunks
	AudioChunkMessageType = 4
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by listeners to initiate the handshake. Formats are
// in preference order; the server picks the first one it can produce.
type ClientHello struct {
	ClientID         string        `json:"client_id"`
	Name             string        `json:"name"`
	Version          int           `json:"version"`
	SupportedFormats []AudioFormat `json:"supported_formats"`
	BufferCapacity   int           `json:"buffer_capacity"`
}

// AudioFormat describes a supported audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// StreamStart announces the format of the binary chunks that follow
type StreamStart struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // Base64-encoded
}

// StreamEnd tells the client no more chunks will arrive
type StreamEnd struct {
	Reason string `json:"reason"` // "shutdown", "stopped"
}

// ServerState describes what the server is synthesizing
type ServerState struct {
	State      string      `json:"state"` // "idle", "running", "stopped"
	Preset     string      `json:"preset,omitempty"`
	SampleRate int         `json:"sample_rate"`
	Channels   int         `json:"channels"`
	Frames     uint64      `json:"frames"`
	Voices     []VoiceInfo `json:"voices"`
}

// VoiceInfo describes one voice of the running patch
type VoiceInfo struct {
	Frequency float64 `json:"frequency"`
	Waveform  string  `json:"waveform"`
	Level     float64 `json:"level"`
	Detune    float64 `json:"detune"`
}

// ServerError is sent before the server drops a connection
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "shutdown", "user_request"
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`    // Server receive timestamp
	ServerTransmitted int64 `json:"server_transmitted"` // Server send timestamp
}

// AudioChunk represents a timestamped audio frame
type AudioChunk struct {
	Timestamp int64  // Microseconds, server clock
	Data      []byte // Encoded audio
}

// PutChunkHeader writes the binary chunk header into dst[:BinaryMessageHeaderSize]
func PutChunkHeader(dst []byte, timestamp int64) {
	dst[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(dst[1:BinaryMessageHeaderSize], uint64(timestamp))
}

// ParseChunk splits a binary message into its timestamp and payload. The
// payload aliases data.
func ParseChunk(data []byte) (AudioChunk, error) {
	if len(data) < BinaryMessageHeaderSize {
		return AudioChunk{}, fmt.Errorf("binary message too short: %d bytes", len(data))
	}
	if data[0] != AudioChunkMessageType {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize])),
		Data:      data[BinaryMessageHeaderSize:],
	}, nil
}
