//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output using PortAudio callbacks
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/mitchpk/tinysynth/pkg/audio"
)

// PortAudio output implementation
type PortAudio struct {
	*Pump

	opts   Options
	stream *portaudio.Stream
	format audio.Format
	mu     sync.Mutex
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(opts Options) *PortAudio {
	return &PortAudio{
		Pump: NewPump(),
		opts: opts.withDefaults(),
	}
}

// Name returns the backend name
func (p *PortAudio) Name() string { return "portaudio" }

// Open initializes PortAudio with a float32 or int16 stream
func (p *PortAudio) Open(want audio.Format) (audio.Format, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return audio.Format{}, fmt.Errorf("portaudio stream already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return audio.Format{}, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	rate := DefaultSampleRate
	if dev, err := portaudio.DefaultOutputDevice(); err == nil && dev.DefaultSampleRate > 0 {
		rate = int(dev.DefaultSampleRate)
	}
	got := negotiate(want, rate)

	var callback interface{}
	if want.Encoding == audio.Int16 {
		got.Encoding = audio.Int16
		callback = p.fillInt16
	} else {
		got.Encoding = audio.Float32
		callback = p.fillFloat32
	}
	got.BitDepth = got.Encoding.BytesPerSample() * 8

	framesPerBuffer := got.SampleRate * p.opts.BufferMs / 1000
	stream, err := portaudio.OpenDefaultStream(0, got.Channels, float64(got.SampleRate), framesPerBuffer, callback)
	if err != nil {
		portaudio.Terminate()
		return audio.Format{}, fmt.Errorf("failed to open stream: %w", err)
	}

	p.stream = stream
	p.format = got

	log.Printf("Audio output initialized: %dHz, %d channels (portaudio/%s)", got.SampleRate, got.Channels, got.Encoding)

	return got, nil
}

func (p *PortAudio) fillFloat32(out []float32) {
	p.Pull(out)
}

func (p *PortAudio) fillInt16(out []int16) {
	buf := p.Buffer(len(out))
	p.Pull(buf)
	audio.ConvertBuffer(out, buf)
}

// Start begins stream callbacks
func (p *PortAudio) Start(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrNotOpen
	}
	p.Attach(src)
	if err := p.stream.Start(); err != nil {
		p.Detach()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

// Stop halts stream callbacks
func (p *PortAudio) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Detach()
	if p.stream == nil {
		return nil
	}
	return p.stream.Stop()
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Detach()
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			return err
		}
		p.stream = nil
	}
	return portaudio.Terminate()
}
