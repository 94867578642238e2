// ABOUTME: Audio sink interface definition and backend registry
// ABOUTME: Sinks negotiate a format and pull float32 buffers from a Source
package output

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mitchpk/tinysynth/pkg/audio"
)

const (
	// DefaultSampleRate is used when neither caller nor backend picks a rate
	DefaultSampleRate = 48000

	// DefaultChannels is used when the caller asks for 0 channels
	DefaultChannels = 2

	// DefaultBufferMs is the device latency hint when Options leaves it at 0
	DefaultBufferMs = 20
)

var (
	ErrNotOpen         = errors.New("output not opened")
	ErrUnknownBackend  = errors.New("unknown audio backend")
	ErrUnsupportedSpec = errors.New("unsupported output format")
)

// Source renders interleaved float32 frames on demand. *synth.Driver
// satisfies it.
type Source interface {
	Fill(buf []float32) error
}

// Sink is an audio output device. It owns the callback cadence and
// converts float32 samples into whatever the device consumes.
type Sink interface {
	// Open negotiates want with the device and returns the format actually
	// in use. Zero SampleRate or Channels ask for the backend default.
	Open(want audio.Format) (audio.Format, error)

	// Start begins pulling buffers from src
	Start(src Source) error

	// Stop halts callbacks; the device stays open
	Stop() error

	// Close releases output resources
	Close() error

	// Name returns the backend name
	Name() string
}

// VolumeControl is implemented by every sink in this package
type VolumeControl interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}

// Options configure a sink at construction
type Options struct {
	// BufferMs is the device buffer length hint in milliseconds
	BufferMs int

	// AppName identifies the client to sound servers that show one
	AppName string

	// Writer receives packed samples from the null and stdout sinks
	Writer io.Writer
}

func (o Options) withDefaults() Options {
	if o.BufferMs <= 0 {
		o.BufferMs = DefaultBufferMs
	}
	if o.AppName == "" {
		o.AppName = "tinysynth"
	}
	if o.Writer == nil {
		o.Writer = io.Discard
	}
	return o
}

// Factory builds a sink from options
type Factory func(opts Options) Sink

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"oto":       func(o Options) Sink { return NewOto(o) },
		"malgo":     func(o Options) Sink { return NewMalgo(o) },
		"pulse":     func(o Options) Sink { return NewPulse(o) },
		"beep":      func(o Options) Sink { return NewBeep(o) },
		"portaudio": func(o Options) Sink { return NewPortAudio(o) },
		"null":      func(o Options) Sink { return NewNull(o) },
		"stdout":    func(o Options) Sink { return NewStdout(o) },
	}
)

// Register adds or replaces a backend
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New creates the named backend
func New(name string, opts Options) (Sink, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return f(opts), nil
}

// Backends lists registered backend names in order
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func negotiate(want audio.Format, rate int) audio.Format {
	got := want
	if got.SampleRate <= 0 {
		got.SampleRate = rate
	}
	if got.Channels <= 0 {
		got.Channels = DefaultChannels
	}
	return got
}

type sourceRef struct {
	src Source
}

// Pump sits between a device callback and a Source. It hands out a reused
// scratch buffer, substitutes silence when there is no source or the source
// fails, and applies software volume. Pull and Buffer belong to the single
// callback goroutine; everything else is safe from any goroutine.
type Pump struct {
	source   atomic.Pointer[sourceRef]
	scratch  []float32
	volume   atomic.Int32
	muted    atomic.Bool
	failures atomic.Uint64
}

// NewPump creates a pump at full volume with no source
func NewPump() *Pump {
	p := &Pump{}
	p.volume.Store(100)
	return p
}

// Attach makes src the pump's source
func (p *Pump) Attach(src Source) {
	p.source.Store(&sourceRef{src: src})
}

// Detach drops the source; later pulls are silent
func (p *Pump) Detach() {
	p.source.Store(nil)
}

// Attached reports whether a source is set
func (p *Pump) Attached() bool {
	return p.source.Load() != nil
}

// Buffer returns the scratch buffer resized to n samples. It only
// allocates when n exceeds every earlier request.
func (p *Pump) Buffer(n int) []float32 {
	if cap(p.scratch) < n {
		p.scratch = make([]float32, n)
	}
	return p.scratch[:n]
}

// Pull fills buf from the source, or with silence
func (p *Pump) Pull(buf []float32) {
	ref := p.source.Load()
	if ref == nil {
		clear(buf)
		return
	}

	if err := ref.src.Fill(buf); err != nil {
		clear(buf)
		if p.failures.Add(1) == 1 {
			log.Printf("Audio source error (further errors counted, not logged): %v", err)
		}
		return
	}

	p.applyVolume(buf)
}

// Failures returns how many pulls the source failed
func (p *Pump) Failures() uint64 {
	return p.failures.Load()
}

// SetVolume sets the volume (0-100)
func (p *Pump) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	p.volume.Store(int32(volume))
}

// SetMuted sets mute state
func (p *Pump) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// GetVolume returns current volume
func (p *Pump) GetVolume() int {
	return int(p.volume.Load())
}

// IsMuted returns mute state
func (p *Pump) IsMuted() bool {
	return p.muted.Load()
}

// applyVolume scales buf in place; integer conversion clamps later
func (p *Pump) applyVolume(buf []float32) {
	multiplier := getVolumeMultiplier(p.GetVolume(), p.IsMuted())
	if multiplier == 1 {
		return
	}
	for i := range buf {
		buf[i] *= multiplier
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0.0
	}
	return float32(volume) / 100.0
}
