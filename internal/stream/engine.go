// ABOUTME: Chunk loop for the stream server
// ABOUTME: Pulls float32 from the source on a ticker and encodes per listener
package stream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/encode"
	"github.com/mitchpk/tinysynth/pkg/audio/resample"
	"github.com/mitchpk/tinysynth/pkg/protocol"
)

// OpusSampleRate is the rate Opus listeners receive
const OpusSampleRate = 48000

// ChooseFormat picks the first listener format the server can produce from
// an engine running at engine. Listeners that name nothing usable get
// 16-bit PCM.
func ChooseFormat(supported []protocol.AudioFormat, engine audio.Format) audio.Format {
	for _, f := range supported {
		switch f.Codec {
		case "pcm":
			if f.BitDepth == 16 || f.BitDepth == 24 {
				return pcmFormat(engine, f.BitDepth)
			}
		case "opus":
			if engine.Channels <= 2 {
				return audio.Format{
					Codec:      "opus",
					Encoding:   audio.Int16,
					SampleRate: OpusSampleRate,
					Channels:   engine.Channels,
					BitDepth:   16,
				}
			}
		}
	}
	return pcmFormat(engine, 16)
}

func pcmFormat(engine audio.Format, bitDepth int) audio.Format {
	enc := audio.Int16
	if bitDepth == 24 {
		enc = audio.Int24
	}
	return audio.Format{
		Codec:      "pcm",
		Encoding:   enc,
		SampleRate: engine.SampleRate,
		Channels:   engine.Channels,
		BitDepth:   bitDepth,
	}
}

// clientStream is one listener's encoder state. Everything but format is
// touched only with Server.streamMu held.
type clientStream struct {
	format  audio.Format
	encoder encode.Encoder

	// Opus only
	frameSamples int
	resampler    *resample.Resampler
	resampled    []float32
	pending      []float32
	packet       []byte

	ints []int32

	streaming bool
	anchored  bool
	anchor    int64  // timestamp of the first chunk, server clock µs
	frames    uint64 // frames sent since anchor
}

func newClientStream(format audio.Format, engine audio.Format) (*clientStream, error) {
	encoder, err := encode.New(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s encoder: %w", format.Codec, err)
	}

	cs := &clientStream{
		format:  format,
		encoder: encoder,
	}

	if opus, ok := encoder.(*encode.OpusEncoder); ok {
		cs.frameSamples = opus.FrameSamples()
		cs.packet = make([]byte, encode.MaxOpusPacket)
		if engine.SampleRate != format.SampleRate {
			cs.resampler = resample.New(engine.SampleRate, format.SampleRate, format.Channels)
		}
	}
	return cs, nil
}

func (cs *clientStream) reset() {
	cs.anchored = false
	cs.frames = 0
	cs.pending = cs.pending[:0]
	if cs.resampler != nil {
		cs.resampler.Reset()
	}
}

func (cs *clientStream) close() {
	if err := cs.encoder.Close(); err != nil {
		log.Printf("Warning: encoder close error: %v", err)
	}
}

// timestamp returns the stamp for the next chunk
func (cs *clientStream) timestamp(base int64) int64 {
	if !cs.anchored {
		cs.anchor = base
		cs.anchored = true
	}
	return cs.anchor + int64(cs.frames*1_000_000/uint64(cs.format.SampleRate))
}

func (cs *clientStream) int32s(n int) []int32 {
	if cap(cs.ints) < n {
		cs.ints = make([]int32, n)
	}
	return cs.ints[:n]
}

// encode turns one engine chunk into zero or more framed messages
func (cs *clientStream) encode(buf []float32, base int64, emit func([]byte)) error {
	if cs.frameSamples == 0 {
		return cs.encodePCM(buf, base, emit)
	}
	return cs.encodeOpus(buf, base, emit)
}

func (cs *clientStream) encodePCM(buf []float32, base int64, emit func([]byte)) error {
	ints := cs.int32s(len(buf))
	audio.ConvertBuffer(ints, buf)

	msg := make([]byte, protocol.BinaryMessageHeaderSize+len(buf)*cs.format.BitDepth/8)
	n, err := cs.encoder.EncodeInto(msg[protocol.BinaryMessageHeaderSize:], ints)
	if err != nil {
		return err
	}
	protocol.PutChunkHeader(msg, cs.timestamp(base))
	emit(msg[:protocol.BinaryMessageHeaderSize+n])

	cs.frames += uint64(len(buf) / cs.format.Channels)
	return nil
}

func (cs *clientStream) encodeOpus(buf []float32, base int64, emit func([]byte)) error {
	src := buf
	if cs.resampler != nil {
		need := cs.resampler.MaxOutputSamples(len(buf))
		if cap(cs.resampled) < need {
			cs.resampled = make([]float32, need)
		}
		n := cs.resampler.Resample(buf, cs.resampled[:need])
		src = cs.resampled[:n]
	}
	cs.pending = append(cs.pending, src...)

	consumed := 0
	for len(cs.pending)-consumed >= cs.frameSamples {
		frame := cs.pending[consumed : consumed+cs.frameSamples]
		ints := cs.int32s(len(frame))
		audio.ConvertBuffer(ints, frame)

		n, err := cs.encoder.EncodeInto(cs.packet, ints)
		if err != nil {
			return err
		}

		msg := make([]byte, protocol.BinaryMessageHeaderSize+n)
		protocol.PutChunkHeader(msg, cs.timestamp(base))
		copy(msg[protocol.BinaryMessageHeaderSize:], cs.packet[:n])
		emit(msg)

		cs.frames += uint64(cs.frameSamples / cs.format.Channels)
		consumed += cs.frameSamples
	}
	cs.pending = cs.pending[:copy(cs.pending, cs.pending[consumed:])]
	return nil
}

// run pulls one chunk per tick until ctx is cancelled
func (s *Server) run(ctx context.Context, format audio.Format) {
	defer close(s.done)

	period := time.Duration(s.config.ChunkMs) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	carry := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Carry the remainder so rates that don't divide evenly keep pace
		carry += format.SampleRate * s.config.ChunkMs
		frames := carry / 1000
		carry %= 1000

		buf := s.Buffer(frames * format.Channels)
		s.Pull(buf)
		s.frames.Add(uint64(frames))

		s.sendChunk(buf)
	}
}

// sendChunk encodes buf for every streaming listener
func (s *Server) sendChunk(buf []float32) {
	base := s.getClockMicros() + int64(s.config.BufferAheadMs)*1000

	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		if !client.stream.streaming {
			continue
		}
		err := client.stream.encode(buf, base, func(msg []byte) {
			if err := s.sendBinary(client, msg); err != nil {
				if s.config.Debug {
					log.Printf("[DEBUG] Dropped chunk for %s: %v", client.Name, err)
				}
				return
			}
			s.chunks.Add(1)
		})
		if err != nil {
			log.Printf("Error encoding chunk for %s: %v", client.Name, err)
		}
	}
}
