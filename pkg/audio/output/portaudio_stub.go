//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"

	"github.com/mitchpk/tinysynth/pkg/audio"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output implementation (stub)
type PortAudio struct {
	*Pump
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(opts Options) *PortAudio {
	return &PortAudio{Pump: NewPump()}
}

// Name returns the backend name
func (p *PortAudio) Name() string { return "portaudio" }

// Open initializes PortAudio
func (p *PortAudio) Open(want audio.Format) (audio.Format, error) {
	return audio.Format{}, errPortAudioDisabled
}

// Start begins playback
func (p *PortAudio) Start(src Source) error {
	return errPortAudioDisabled
}

// Stop halts playback
func (p *PortAudio) Stop() error {
	return nil
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
