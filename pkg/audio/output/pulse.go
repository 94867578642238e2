// ABOUTME: PulseAudio output implementation using the pure Go pulse client
// ABOUTME: Playback stream pulls interleaved float32 directly from the source
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/mitchpk/tinysynth/pkg/audio"
)

// Pulse output implementation talking to a PulseAudio or PipeWire server
type Pulse struct {
	*Pump

	opts    Options
	client  *pulse.Client
	stream  *pulse.PlaybackStream
	format  audio.Format
	running bool
	mu      sync.Mutex
}

// NewPulse creates a new Pulse output
func NewPulse(opts Options) *Pulse {
	return &Pulse{
		Pump: NewPump(),
		opts: opts.withDefaults(),
	}
}

// Name returns the backend name
func (p *Pulse) Name() string { return "pulse" }

// Open connects to the sound server and creates a mono or stereo float32
// playback stream
func (p *Pulse) Open(want audio.Format) (audio.Format, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	got := negotiate(want, DefaultSampleRate)
	got.Encoding = audio.Float32
	got.BitDepth = 32

	var layout pulse.PlaybackOption
	switch got.Channels {
	case 1:
		layout = pulse.PlaybackMono
	case 2:
		layout = pulse.PlaybackStereo
	default:
		return audio.Format{}, fmt.Errorf("%w: pulse sink plays 1 or 2 channels, not %d", ErrUnsupportedSpec, got.Channels)
	}

	p.closeStream()

	if p.client == nil {
		client, err := pulse.NewClient(pulse.ClientApplicationName(p.opts.AppName))
		if err != nil {
			return audio.Format{}, fmt.Errorf("failed to connect to pulse server: %w", err)
		}
		p.client = client
	}

	stream, err := p.client.NewPlayback(pulse.Float32Reader(p.read),
		layout,
		pulse.PlaybackSampleRate(got.SampleRate),
		pulse.PlaybackLatency(float64(p.opts.BufferMs)/1000),
	)
	if err != nil {
		return audio.Format{}, fmt.Errorf("failed to create pulse playback: %w", err)
	}

	p.stream = stream
	p.format = got

	log.Printf("Audio output initialized: %dHz, %d channels (pulse)", got.SampleRate, got.Channels)

	return got, nil
}

// read is the stream's data callback
func (p *Pulse) read(out []float32) (int, error) {
	p.Pull(out)
	return len(out), nil
}

// Start begins playback
func (p *Pulse) Start(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrNotOpen
	}

	p.Attach(src)
	if !p.running {
		p.stream.Start()
		p.running = true
	}
	return nil
}

// Stop pauses the stream and detaches the source
func (p *Pulse) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Detach()
	if p.stream == nil || !p.running {
		return nil
	}
	p.stream.Stop()
	p.running = false
	if err := p.stream.Error(); err != nil {
		return fmt.Errorf("pulse playback failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (p *Pulse) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Detach()
	p.closeStream()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	return nil
}

// closeStream must hold p.mu
func (p *Pulse) closeStream() {
	if p.stream == nil {
		return
	}
	if p.stream.Underflow() {
		log.Printf("Pulse playback underflowed")
	}
	p.stream.Close()
	p.stream = nil
	p.running = false
}
