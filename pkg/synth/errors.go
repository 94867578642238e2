// ABOUTME: Error kinds for synth configuration and buffer handling
// ABOUTME: Sentinel errors plus a typed config error carrying the bad field
package synth

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrInvalidOscillatorConfig = errors.New("invalid oscillator config")
	ErrInvalidStreamConfig     = errors.New("invalid stream config")
	ErrBufferMisalignment      = errors.New("buffer length not a multiple of channel count")
	ErrStreamStopped           = errors.New("stream stopped")
)

// ConfigError reports the configuration field that was rejected
type ConfigError struct {
	Field string
	Value float64
	Err   error // one of the sentinel errors above
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s=%g", e.Err, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func oscillatorError(field string, value float64) error {
	return &ConfigError{Field: field, Value: value, Err: ErrInvalidOscillatorConfig}
}

func streamError(field string, value float64) error {
	return &ConfigError{Field: field, Value: value, Err: ErrInvalidStreamConfig}
}
