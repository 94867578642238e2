// ABOUTME: Callback driver that fills interleaved sink buffers
// ABOUTME: Tracks the Idle/Running/Stopped session state machine
package synth

import (
	"fmt"
	"sync/atomic"
)

// State is the driver's session state
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Driver owns one engine and renders it into buffers handed over by an
// audio sink. Fill must only be called from one goroutine at a time; Start,
// Stop, State and Frames are safe to call from any goroutine.
type Driver struct {
	engine *Engine
	state  atomic.Int32
	frames atomic.Uint64
}

// NewDriver validates cfg and returns an Idle driver
func NewDriver(cfg Config) (*Driver, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Driver{engine: engine}, nil
}

// Start moves an Idle driver to Running. Starting a Running driver is a
// no-op; a Stopped driver must be Reset first.
func (d *Driver) Start() error {
	if d.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return nil
	}
	if State(d.state.Load()) == Stopped {
		return ErrStreamStopped
	}
	return nil
}

// Stop moves the driver to Stopped; later Fill calls produce silence
func (d *Driver) Stop() {
	d.state.Store(int32(Stopped))
}

// Reset returns the driver to Idle with every clock at zero, ready for a
// new session. Call it only while no sink is calling Fill.
func (d *Driver) Reset() {
	d.engine.reset()
	d.frames.Store(0)
	d.state.Store(int32(Idle))
}

// State returns the current session state
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Frames returns the number of frames rendered since the last Reset
func (d *Driver) Frames() uint64 {
	return d.frames.Load()
}

// Channels returns the channel count buffers are partitioned by
func (d *Driver) Channels() int {
	return d.engine.channels
}

// SampleRate returns the session sample rate in Hz
func (d *Driver) SampleRate() float64 {
	return d.engine.sampleRate
}

// Engine returns the driven engine. Its state must not be read while a
// sink is calling Fill.
func (d *Driver) Engine() *Engine {
	return d.engine
}

// Fill renders len(buf)/channels frames into buf, channel samples
// interleaved. A misaligned buffer is refused untouched. When the driver is
// not Running the buffer is filled with silence and no clock moves.
func (d *Driver) Fill(buf []float32) error {
	e := d.engine
	channels := e.channels
	if len(buf)%channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrBufferMisalignment, len(buf), channels)
	}

	if State(d.state.Load()) != Running {
		clear(buf)
		return nil
	}

	for frame := 0; frame < len(buf); frame += channels {
		e.Step()
		for ch := 0; ch < channels; ch++ {
			buf[frame+ch] = float32(e.Mix(ch))
		}
	}
	d.frames.Add(uint64(len(buf) / channels))

	return nil
}
