// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo; the device callback renders directly from the source
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mitchpk/tinysynth/pkg/audio"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	*Pump

	opts     Options
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	mu       sync.Mutex
}

// NewMalgo creates a new Malgo output
func NewMalgo(opts Options) *Malgo {
	return &Malgo{
		Pump: NewPump(),
		opts: opts.withDefaults(),
	}
}

// Name returns the backend name
func (m *Malgo) Name() string { return "malgo" }

// Open initializes the playback device. A zero sample rate takes the
// device's native rate.
func (m *Malgo) Open(want audio.Format) (audio.Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		log.Printf("Format change requested, reinitializing device")
		m.closeDevice()
	}

	format, err := malgoFormat(want.Encoding)
	if err != nil {
		return audio.Format{}, err
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return audio.Format{}, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	channels := want.Channels
	if channels <= 0 {
		channels = DefaultChannels
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(max(want.SampleRate, 0))
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.opts.BufferMs)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: m.dataCallback,
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return audio.Format{}, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	enc, err := encodingFromMalgo(device.PlaybackFormat())
	if err != nil {
		device.Uninit()
		return audio.Format{}, err
	}

	got := want
	got.Encoding = enc
	got.SampleRate = int(device.SampleRate())
	got.Channels = int(device.PlaybackChannels())
	got.BitDepth = enc.BytesPerSample() * 8

	m.device = device
	m.format = got

	log.Printf("Audio output initialized: %dHz, %d channels, %d-bit (malgo/%s)",
		got.SampleRate, got.Channels, got.BitDepth, formatName(device.PlaybackFormat()))

	return got, nil
}

// Start begins device callbacks
func (m *Malgo) Start(src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return ErrNotOpen
	}

	m.Attach(src)
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		m.Detach()
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput, pInput []byte, frameCount uint32) {
	buf := m.Buffer(int(frameCount) * m.format.Channels)
	m.Pull(buf)
	audio.PutSamples(pOutput, buf, m.format.Encoding)
}

// Stop halts the device and detaches the source
func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Detach()
	if m.device != nil && m.device.IsStarted() {
		if err := m.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop device: %w", err)
		}
	}
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Detach()
	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	if err := m.device.Stop(); err != nil {
		log.Printf("Warning: device stop error: %v", err)
	}
	m.device.Uninit()
	m.device = nil
}

func malgoFormat(enc audio.Encoding) (malgo.FormatType, error) {
	switch enc {
	case audio.Float32:
		return malgo.FormatF32, nil
	case audio.Int16:
		return malgo.FormatS16, nil
	case audio.Int24:
		return malgo.FormatS24, nil
	case audio.Int32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: malgo cannot play %s", ErrUnsupportedSpec, enc)
	}
}

func encodingFromMalgo(format malgo.FormatType) (audio.Encoding, error) {
	switch format {
	case malgo.FormatF32:
		return audio.Float32, nil
	case malgo.FormatS16:
		return audio.Int16, nil
	case malgo.FormatS24:
		return audio.Int24, nil
	case malgo.FormatS32:
		return audio.Int32, nil
	default:
		return 0, fmt.Errorf("%w: device chose %s", ErrUnsupportedSpec, formatName(format))
	}
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatF32:
		return "F32"
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
