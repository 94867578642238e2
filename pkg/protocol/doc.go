// ABOUTME: Synth stream wire protocol package
// ABOUTME: Defines protocol messages and the listener WebSocket client
// Package protocol implements the wire protocol between the stream server
// and remote listeners.
//
// Control messages are JSON envelopes {"type", "payload"} in text frames.
// Audio travels in binary frames: one type byte (4), an 8-byte big-endian
// server timestamp in microseconds, then the encoded chunk.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8927"})
//	err := client.Connect()
//	start := <-client.StreamStart
//	chunk := <-client.AudioChunks
package protocol
