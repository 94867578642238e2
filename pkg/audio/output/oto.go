// ABOUTME: Oto-based audio output implementation
// ABOUTME: Oto pulls bytes through io.Reader, which renders straight from the source
package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/mitchpk/tinysynth/pkg/audio"
)

// Oto output implementation using oto library
type Oto struct {
	*Pump

	opts   Options
	otoCtx *oto.Context
	player *oto.Player
	format audio.Format
	mu     sync.Mutex
}

// NewOto creates a new Oto output
func NewOto(opts Options) *Oto {
	return &Oto{
		Pump: NewPump(),
		opts: opts.withDefaults(),
	}
}

// Name returns the backend name
func (o *Oto) Name() string { return "oto" }

// Open initializes the output device. Oto takes float32 or signed 16-bit;
// any other encoding request gets float32.
func (o *Oto) Open(want audio.Format) (audio.Format, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	got := negotiate(want, DefaultSampleRate)
	otoFormat := oto.FormatFloat32LE
	got.Encoding = audio.Float32
	if want.Encoding == audio.Int16 {
		otoFormat = oto.FormatSignedInt16LE
		got.Encoding = audio.Int16
	}
	got.BitDepth = got.Encoding.BytesPerSample() * 8

	// oto allows one context per process, so a reopen keeps the first format
	if o.otoCtx != nil {
		if got.SampleRate != o.format.SampleRate || got.Channels != o.format.Channels || got.Encoding != o.format.Encoding {
			log.Printf("Warning: oto cannot reinitialize (%s requested), continuing with %s", got, o.format)
		}
		return o.format, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   got.SampleRate,
		ChannelCount: got.Channels,
		Format:       otoFormat,
		BufferSize:   time.Duration(o.opts.BufferMs) * time.Millisecond,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return audio.Format{}, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = got

	log.Printf("Audio output initialized: %dHz, %d channels (oto/%s)", got.SampleRate, got.Channels, got.Encoding)

	return got, nil
}

// Start creates a player that reads from the source
func (o *Oto) Start(src Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil {
		return ErrNotOpen
	}

	o.Attach(src)
	if o.player == nil {
		o.player = o.otoCtx.NewPlayer(o)
	}
	o.player.Play()
	return nil
}

// Read renders whole frames into p. Oto calls it from its own goroutine.
func (o *Oto) Read(p []byte) (int, error) {
	frameBytes := o.format.FrameBytes()
	n := len(p) / frameBytes * frameBytes
	if n == 0 {
		clear(p)
		return len(p), nil
	}

	bytesPerSample := o.format.Encoding.BytesPerSample()
	buf := o.Buffer(n / bytesPerSample)
	o.Pull(buf)
	return audio.PutSamples(p, buf, o.format.Encoding), nil
}

// Stop pauses playback and detaches the source
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Pause()
	}
	o.Detach()
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Detach()
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Warning: oto player close error: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}
