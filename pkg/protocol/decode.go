// ABOUTME: Decoding helpers for JSON protocol messages
// ABOUTME: Splits the envelope so payloads decode straight into their struct
package protocol

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode returns the message type and the raw payload
func Decode(data []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("message has no type")
	}
	return env.Type, env.Payload, nil
}

// DecodeInto checks the message type and unmarshals the payload into v
func DecodeInto(data []byte, wantType string, v interface{}) error {
	msgType, payload, err := Decode(data)
	if err != nil {
		return err
	}
	if msgType != wantType {
		return fmt.Errorf("expected %s, got %s", wantType, msgType)
	}
	return json.Unmarshal(payload, v)
}
