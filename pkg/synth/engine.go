// ABOUTME: Oscillator bank and mix engine
// ABOUTME: Owns the frame clock and mixes one sample per channel per frame
package synth

import "math"

const (
	// DefaultGain is the fixed attenuation applied before averaging by voice count
	DefaultGain = 0.2

	// DefaultSpread is the channel offset magnitude in Hz
	DefaultSpread = 0.1
)

// Config describes an engine session. SampleRate and Channels come from the
// sink's negotiated format and are fixed for the session.
type Config struct {
	SampleRate float64
	Channels   int

	// Notes are sine oscillator frequencies in Hz, each with its own phase clock
	Notes []float64

	// Voices are tone generators evaluated from the frame clock
	Voices []Voice

	// Gain is applied to the voice sum before averaging.
	// A zero value uses DefaultGain.
	Gain float64

	// Spread is the channel offset magnitude in Hz.
	// A zero value uses DefaultSpread.
	Spread float64

	// NoSpread forces a zero channel offset so every channel carries the
	// same signal. Spread is ignored when set.
	NoSpread bool
}

func (c Config) withDefaults() Config {
	if c.Gain == 0 {
		c.Gain = DefaultGain
	}
	if c.NoSpread {
		c.Spread = 0
	} else if c.Spread == 0 {
		c.Spread = DefaultSpread
	}
	return c
}

// Validate checks the config the same way NewEngine does
func (c Config) Validate() error {
	c = c.withDefaults()

	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		return streamError("sample rate", c.SampleRate)
	}
	if c.Channels <= 0 {
		return streamError("channels", float64(c.Channels))
	}
	if c.Gain < 0 || math.IsNaN(c.Gain) || math.IsInf(c.Gain, 0) {
		return streamError("gain", c.Gain)
	}
	if c.Spread < 0 || math.IsNaN(c.Spread) || math.IsInf(c.Spread, 0) {
		return streamError("spread", c.Spread)
	}
	if len(c.Notes)+len(c.Voices) == 0 {
		return oscillatorError("voice count", 0)
	}
	for _, freq := range c.Notes {
		if _, err := NewOscillator(freq); err != nil {
			return err
		}
	}
	for _, v := range c.Voices {
		if err := v.validate(c.Spread); err != nil {
			return err
		}
	}
	return nil
}

// Engine holds the state of one synthesis session
type Engine struct {
	sampleRate  float64
	channels    int
	frameClock  float64
	gain        float64
	spread      float64
	oscillators []Oscillator
	voices      []Voice
}

// NewEngine validates cfg and builds an engine with all clocks at zero
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	oscillators := make([]Oscillator, len(cfg.Notes))
	for i, freq := range cfg.Notes {
		oscillators[i], _ = NewOscillator(freq)
	}

	voices := make([]Voice, len(cfg.Voices))
	copy(voices, cfg.Voices)

	return &Engine{
		sampleRate:  cfg.SampleRate,
		channels:    cfg.Channels,
		gain:        cfg.Gain,
		spread:      cfg.Spread,
		oscillators: oscillators,
		voices:      voices,
	}, nil
}

// ChannelOffset returns the detune offset for a channel: -spread on
// channel 0 and +spread on every other channel
func ChannelOffset(channel int, spread float64) float64 {
	if channel == 0 {
		return -spread
	}
	return spread
}

// Step advances every oscillator by one frame, then the frame clock
func (e *Engine) Step() {
	for i := range e.oscillators {
		e.oscillators[i].Advance(e.sampleRate)
	}
	e.frameClock += 1.0
}

// Mix returns the composite sample for one channel of the current frame.
//
// It reads state only, so every channel of a frame sees the same oscillator
// clocks. The output is sum * gain / voiceCount; tones at unrelated
// frequencies can still interfere beyond [-1, 1] and nothing limits that.
func (e *Engine) Mix(channel int) float64 {
	offset := ChannelOffset(channel, e.spread)

	var output float64
	for _, o := range e.oscillators {
		output += o.Sample(e.sampleRate)
	}
	for _, v := range e.voices {
		output += v.sample(e.frameClock, e.sampleRate, offset)
	}
	return output * e.gain / float64(e.VoiceCount())
}

// reset returns every clock to zero without reallocating
func (e *Engine) reset() {
	for i := range e.oscillators {
		e.oscillators[i].clock = 0
	}
	e.frameClock = 0
}

// FrameClock returns the number of frames stepped since the session began
func (e *Engine) FrameClock() float64 { return e.frameClock }

// SampleRate returns the session sample rate in Hz
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Channels returns the session channel count
func (e *Engine) Channels() int { return e.channels }

// Gain returns the attenuation applied before averaging
func (e *Engine) Gain() float64 { return e.gain }

// Spread returns the channel offset magnitude in Hz
func (e *Engine) Spread() float64 { return e.spread }

// VoiceCount returns the number of oscillators plus tone voices
func (e *Engine) VoiceCount() int {
	return len(e.oscillators) + len(e.voices)
}

// Oscillators returns a copy of the oscillator bank
func (e *Engine) Oscillators() []Oscillator {
	out := make([]Oscillator, len(e.oscillators))
	copy(out, e.oscillators)
	return out
}

// Voices returns a copy of the tone voices
func (e *Engine) Voices() []Voice {
	out := make([]Voice, len(e.voices))
	copy(out, e.voices)
	return out
}
