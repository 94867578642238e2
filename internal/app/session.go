// ABOUTME: Synth session orchestration
// ABOUTME: Opens a sink, builds the driver for its format, and runs the two together
package app

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/mitchpk/tinysynth/internal/patch"
	"github.com/mitchpk/tinysynth/internal/stream"
	"github.com/mitchpk/tinysynth/internal/ui"
	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
	"github.com/mitchpk/tinysynth/pkg/protocol"
	"github.com/mitchpk/tinysynth/pkg/synth"
)

// StreamBackend names the network sink
const StreamBackend = "stream"

// Config holds session configuration
type Config struct {
	Backend string
	Options output.Options

	// Format is the requested stream; zero fields take backend defaults
	Format audio.Format

	Patch  patch.Patch
	// Volume is 0-100 with 0 silent; negative leaves the sink at full volume
	Volume int

	// Stream configures the network sink when Backend is StreamBackend
	Stream stream.Config
}

// Session is one negotiated sink plus the driver rendering into it
type Session struct {
	sink      output.Sink
	driver    *synth.Driver
	synthCfg  synth.Config
	format    audio.Format
	presetTag string
}

// New opens the sink, negotiates the format and builds the driver. The
// driver stays Idle until Start.
func New(config Config) (*Session, error) {
	sink, err := newSink(config)
	if err != nil {
		return nil, err
	}

	format, err := sink.Open(config.Format)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to open %s output: %w", sink.Name(), err)
	}

	synthCfg, err := config.Patch.Config(float64(format.SampleRate), format.Channels)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to build patch: %w", err)
	}

	driver, err := synth.NewDriver(synthCfg)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	s := &Session{
		sink:      sink,
		driver:    driver,
		synthCfg:  synthCfg,
		format:    format,
		presetTag: config.Patch.Preset,
	}
	if s.presetTag == "" {
		s.presetTag = patch.DefaultPreset
	}

	if vc, ok := sink.(output.VolumeControl); ok && config.Volume >= 0 {
		vc.SetVolume(config.Volume)
	}
	if srv, ok := sink.(*stream.Server); ok {
		srv.SetStateFunc(s.ServerState)
	}

	log.Printf("Session ready: %s via %s, %d voices", format, sink.Name(), len(synthCfg.Notes)+len(synthCfg.Voices))
	return s, nil
}

func newSink(config Config) (output.Sink, error) {
	if config.Backend == StreamBackend {
		return stream.New(config.Stream), nil
	}
	return output.New(config.Backend, config.Options)
}

// Backends lists every sink name New accepts
func Backends() []string {
	names := append(output.Backends(), StreamBackend)
	sort.Strings(names)
	return names
}

// Start runs the driver and hands it to the sink
func (s *Session) Start() error {
	if err := s.driver.Start(); err != nil {
		return fmt.Errorf("failed to start driver: %w", err)
	}
	if err := s.sink.Start(s.driver); err != nil {
		s.driver.Stop()
		return fmt.Errorf("failed to start %s output: %w", s.sink.Name(), err)
	}
	log.Printf("Playing")
	return nil
}

// Stop silences the driver, then halts the sink
func (s *Session) Stop() error {
	s.driver.Stop()
	if err := s.sink.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s output: %w", s.sink.Name(), err)
	}
	log.Printf("Stopped after %d frames", s.driver.Frames())
	return nil
}

// Close stops the session and releases the sink
func (s *Session) Close() error {
	stopErr := s.Stop()
	if err := s.sink.Close(); err != nil {
		return errors.Join(stopErr, fmt.Errorf("failed to close %s output: %w", s.sink.Name(), err))
	}
	return stopErr
}

// Format returns the negotiated format
func (s *Session) Format() audio.Format { return s.format }

// Driver returns the session's driver
func (s *Session) Driver() *synth.Driver { return s.driver }

// Sink returns the session's sink
func (s *Session) Sink() output.Sink { return s.sink }

// Volume returns the sink's volume control, or nil
func (s *Session) Volume() output.VolumeControl {
	vc, _ := s.sink.(output.VolumeControl)
	return vc
}

// ServerState describes the session for stream listeners
func (s *Session) ServerState() protocol.ServerState {
	return protocol.ServerState{
		State:      s.driver.State().String(),
		Preset:     s.presetTag,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Frames:     s.driver.Frames(),
		Voices:     patch.Describe(s.synthCfg),
	}
}

// Status describes the session for the TUI
func (s *Session) Status() ui.Status {
	st := ui.Status{
		Backend: s.sink.Name(),
		Format:  s.format,
		Preset:  s.presetTag,
		State:   s.driver.State().String(),
		Frames:  s.driver.Frames(),
		Voices:  patch.Describe(s.synthCfg),
	}
	if p, ok := s.sink.(interface{ Failures() uint64 }); ok {
		st.Failures = p.Failures()
	}
	if srv, ok := s.sink.(*stream.Server); ok {
		for _, c := range srv.Clients() {
			st.Listeners = append(st.Listeners, fmt.Sprintf("%s (%s %d-bit)", c.Name, c.Codec, c.BitDepth))
		}
		sort.Strings(st.Listeners)
	}
	return st
}
