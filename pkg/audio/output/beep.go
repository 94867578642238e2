// ABOUTME: Beep speaker output implementation
// ABOUTME: Adapts the source to a stereo beep.Streamer played by the speaker package
package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/mitchpk/tinysynth/pkg/audio"
)

// Beep output implementation using the beep speaker. The speaker mixes in
// stereo float64, so the negotiated format is always two channels.
type Beep struct {
	*Pump

	opts    Options
	format  audio.Format
	ready   bool
	playing bool
	mu      sync.Mutex
}

// NewBeep creates a new Beep output
func NewBeep(opts Options) *Beep {
	return &Beep{
		Pump: NewPump(),
		opts: opts.withDefaults(),
	}
}

// Name returns the backend name
func (b *Beep) Name() string { return "beep" }

// Open initializes the speaker
func (b *Beep) Open(want audio.Format) (audio.Format, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	got := negotiate(want, DefaultSampleRate)
	if got.Channels != 2 {
		log.Printf("Warning: beep speaker is stereo only, ignoring requested %d channels", got.Channels)
		got.Channels = 2
	}
	got.Encoding = audio.Float32
	got.BitDepth = 32

	if b.ready {
		speaker.Close()
		b.ready = false
	}

	sr := beep.SampleRate(got.SampleRate)
	if err := speaker.Init(sr, sr.N(time.Duration(b.opts.BufferMs)*time.Millisecond)); err != nil {
		return audio.Format{}, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	b.format = got
	b.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels (beep)", got.SampleRate, got.Channels)

	return got, nil
}

// Stream implements beep.Streamer
func (b *Beep) Stream(samples [][2]float64) (int, bool) {
	buf := b.Buffer(len(samples) * 2)
	b.Pull(buf)
	for i := range samples {
		samples[i][0] = float64(buf[i*2])
		samples[i][1] = float64(buf[i*2+1])
	}
	return len(samples), true
}

// Err implements beep.Streamer
func (b *Beep) Err() error {
	return nil
}

// Start hands the sink to the speaker
func (b *Beep) Start(src Source) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return ErrNotOpen
	}

	b.Attach(src)
	if !b.playing {
		speaker.Play(b)
		b.playing = true
	}
	return nil
}

// Stop removes the sink from the speaker
func (b *Beep) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Detach()
	if b.playing {
		speaker.Clear()
		b.playing = false
	}
	return nil
}

// Close releases output resources
func (b *Beep) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Detach()
	if b.ready {
		speaker.Clear()
		speaker.Close()
		b.ready = false
		b.playing = false
	}
	return nil
}
