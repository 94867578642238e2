// ABOUTME: Headless sinks that render at real-time pace into an io.Writer
// ABOUTME: null discards by default; stdout streams raw PCM for piping into other tools
package output

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchpk/tinysynth/pkg/audio"
)

// Null output renders on a ticker and writes packed samples to a writer.
// It accepts every audio.Encoding, which makes it the sink for unsigned
// 16-bit output.
type Null struct {
	*Pump

	name   string
	opts   Options
	writer io.Writer
	format audio.Format
	open   bool
	frames atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewNull creates a headless sink writing to opts.Writer (io.Discard if nil)
func NewNull(opts Options) *Null {
	opts = opts.withDefaults()
	return &Null{
		Pump:   NewPump(),
		name:   "null",
		opts:   opts,
		writer: opts.Writer,
	}
}

// NewStdout creates a headless sink writing raw PCM to standard output
func NewStdout(opts Options) *Null {
	n := NewNull(opts)
	n.name = "stdout"
	n.writer = os.Stdout
	return n
}

// Name returns the backend name
func (n *Null) Name() string { return n.name }

// Open accepts any format, filling in defaults
func (n *Null) Open(want audio.Format) (audio.Format, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		return audio.Format{}, fmt.Errorf("%s sink is running", n.name)
	}

	got := negotiate(want, DefaultSampleRate)
	got.BitDepth = got.Encoding.BytesPerSample() * 8

	n.format = got
	n.open = true

	log.Printf("Audio output initialized: %dHz, %d channels (%s/%s)", got.SampleRate, got.Channels, n.name, got.Encoding)

	return got, nil
}

// Start begins rendering one buffer every BufferMs
func (n *Null) Start(src Source) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.open {
		return ErrNotOpen
	}

	n.Attach(src)
	if n.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.run(ctx, n.format, time.Duration(n.opts.BufferMs)*time.Millisecond)
	return nil
}

func (n *Null) run(ctx context.Context, format audio.Format, period time.Duration) {
	defer close(n.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var out []byte
	carry := 0
	periodMs := int(period / time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Carry the remainder so rates that don't divide evenly keep pace
		carry += format.SampleRate * periodMs
		frames := carry / 1000
		carry %= 1000

		buf := n.Buffer(frames * format.Channels)
		n.Pull(buf)

		size := len(buf) * format.Encoding.BytesPerSample()
		if cap(out) < size {
			out = make([]byte, size)
		}
		out = out[:size]
		audio.PutSamples(out, buf, format.Encoding)

		if _, err := n.writer.Write(out); err != nil {
			log.Printf("%s sink write failed, stopping: %v", n.name, err)
			return
		}
		n.frames.Add(uint64(frames))
	}
}

// Frames returns the number of frames written since creation
func (n *Null) Frames() uint64 {
	return n.frames.Load()
}

// Stop halts the render loop and waits for it to exit
func (n *Null) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.Detach()
	if n.cancel == nil {
		return nil
	}
	n.cancel()
	<-n.done
	n.cancel = nil
	return nil
}

// Close stops the sink
func (n *Null) Close() error {
	if err := n.Stop(); err != nil {
		return err
	}
	n.mu.Lock()
	n.open = false
	n.mu.Unlock()
	return nil
}
