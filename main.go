// ABOUTME: Entry point for the tinysynth command
// ABOUTME: Cobra commands for local playback, network streaming, and preset listing
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mitchpk/tinysynth/internal/app"
	"github.com/mitchpk/tinysynth/internal/patch"
	"github.com/mitchpk/tinysynth/internal/stream"
	"github.com/mitchpk/tinysynth/internal/ui"
	"github.com/mitchpk/tinysynth/internal/version"
	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
	"github.com/mitchpk/tinysynth/pkg/synth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	backend  string
	rate     int
	channels int
	bufferMs int
	encoding string
	volume   int

	preset string
	notes  []string
	voices []string
	gain   float64
	spread float64

	logFile string
	noTUI   bool
	debug   bool

	// serve
	port          int
	serverName    string
	noMDNS        bool
	bufferAheadMs int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tinysynth",
	Short: "Real-time oscillator bank synthesizer",
	Long: `tinysynth renders a bank of sine oscillators and detuned tone voices
straight into an audio device callback, or streams them to listeners on
the network.

Examples:
  tinysynth
  tinysynth --preset wide --backend malgo
  tinysynth --preset none --note 440 --voice 220:tri:0.5:-1
  tinysynth --backend stdout --encoding i16 --rate 44100 | aplay -f S16_LE -r 44100 -c 2`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runPlay,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play through a local audio backend until a key is pressed",
	RunE:  runPlay,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream the synth to WebSocket listeners",
	Long: `Serve the synthesized signal over WebSocket. Listeners receive PCM or
Opus chunks stamped against the server clock. The server is advertised
over mDNS as _tinysynth-server._tcp unless --no-mdns is given.

Example:
  tinysynth serve --port 8927 --preset full`,
	RunE: runServe,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List presets, waveforms, and output backends",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Presets:")
		for _, p := range patch.Presets() {
			fmt.Fprintf(w, "  %-6s %s\n", p.Name, p.Description)
		}
		fmt.Fprintf(w, "  %-6s only the notes and voices given on the command line\n", patch.None)

		names := make([]string, 0, 4)
		for _, wf := range synth.Waveforms() {
			names = append(names, wf.String())
		}
		fmt.Fprintf(w, "\nWaveforms: %s\n", strings.Join(names, ", "))
		fmt.Fprintf(w, "Backends:  %s\n", strings.Join(app.Backends(), ", "))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&backend, "backend", "b", "oto", "Audio backend (oto, malgo, pulse, beep, portaudio, null, stdout)")
	pf.IntVarP(&rate, "rate", "r", 0, "Sample rate in Hz (0 = backend default)")
	pf.IntVarP(&channels, "channels", "c", 0, "Channel count (0 = backend default)")
	pf.IntVar(&bufferMs, "buffer-ms", output.DefaultBufferMs, "Device buffer length in milliseconds")
	pf.StringVarP(&encoding, "encoding", "e", "f32", "Sample encoding to request (f32, i16, u16, i24, i32)")
	pf.IntVar(&volume, "volume", 100, "Output volume (0-100)")
	pf.StringVarP(&preset, "preset", "p", patch.DefaultPreset, "Preset (notes, wide, full, none)")
	pf.StringArrayVarP(&notes, "note", "n", nil, "Extra sine oscillator in Hz (repeatable)")
	pf.StringArrayVarP(&voices, "voice", "v", nil, "Extra voice freq:wave[:level[:detune]] (repeatable)")
	pf.Float64Var(&gain, "gain", synth.DefaultGain, "Mix gain before averaging by voice count")
	pf.Float64Var(&spread, "spread", synth.DefaultSpread, "Channel detune spread in Hz (0 = identical channels)")
	pf.StringVar(&logFile, "log-file", "tinysynth.log", "Log file path")
	pf.BoolVar(&noTUI, "no-tui", false, "Disable the TUI and stream logs to stdout")
	pf.BoolVar(&debug, "debug", false, "Verbose logging")

	serveCmd.Flags().IntVar(&port, "port", stream.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serverName, "name", "", "Server name (default: hostname-tinysynth)")
	serveCmd.Flags().BoolVar(&noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	serveCmd.Flags().IntVar(&bufferAheadMs, "buffer-ahead-ms", stream.DefaultBufferAheadMs, "How far ahead of the server clock chunks are stamped")
}

var logCloser io.Closer

// setupLogging logs to file only while the TUI owns the terminal, and to
// both stdout and file otherwise. The stdout backend owns stdout, so it
// logs to file only.
func setupLogging(cmd *cobra.Command, args []string) error {
	if cmd == presetsCmd || cmd == versionCmd {
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logCloser = f

	if useTUI() || backend == "stdout" {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	log.Printf("Starting %s", version.String())
	return nil
}

func useTUI() bool {
	return !noTUI && backend != "stdout" && term.IsTerminal(int(os.Stdout.Fd()))
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
	}
}

// sessionConfig turns the flags into an app.Config
func sessionConfig(cmd *cobra.Command) (app.Config, error) {
	enc, err := audio.ParseEncoding(encoding)
	if err != nil {
		return app.Config{}, err
	}

	if err := checkLevels(gain, volume); err != nil {
		return app.Config{}, err
	}

	p := patch.Patch{
		Preset:   preset,
		Notes:    notes,
		Voices:   voices,
		Gain:     gain,
		Spread:   spread,
		NoSpread: spread == 0,
	}
	// Explicit notes or voices replace the default preset unless one was asked for
	if !cmd.Flags().Changed("preset") && (len(notes) > 0 || len(voices) > 0) {
		p.Preset = patch.None
	}

	return app.Config{
		Backend: backend,
		Options: output.Options{
			BufferMs: bufferMs,
			AppName:  version.Product,
		},
		Format: audio.Format{
			Encoding:   enc,
			SampleRate: rate,
			Channels:   channels,
		},
		Patch:  p,
		Volume: volume,
	}, nil
}

// checkLevels rejects flag values the session would otherwise reinterpret
func checkLevels(gain float64, volume int) error {
	if gain <= 0 {
		return fmt.Errorf("--gain must be greater than 0, got %v (use --volume 0 to silence)", gain)
	}
	if volume < 0 || volume > 100 {
		return fmt.Errorf("--volume must be 0-100, got %d", volume)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	defer closeLog()

	config, err := sessionConfig(cmd)
	if err != nil {
		return err
	}
	return run(config, waitForKey)
}

func runServe(cmd *cobra.Command, args []string) error {
	defer closeLog()

	config, err := sessionConfig(cmd)
	if err != nil {
		return err
	}

	name := serverName
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		name = fmt.Sprintf("%s-%s", hostname, version.Product)
	}

	config.Backend = app.StreamBackend
	config.Stream = stream.Config{
		Port:          port,
		Name:          name,
		EnableMDNS:    !noMDNS,
		Debug:         debug,
		BufferAheadMs: bufferAheadMs,
	}
	return run(config, waitForSignal)
}

// run opens a session, plays until wait returns, then stops and closes
func run(config app.Config, wait func(context.Context) error) error {
	session, err := app.New(config)
	if err != nil {
		return err
	}

	if err := session.Start(); err != nil {
		session.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI() {
		err = ui.Run(ctx, session.Status, session.Volume())
	} else {
		if !noTUI {
			log.Printf("stdout is not a terminal, running without TUI")
		}
		log.Printf("Playing %s via %s", session.Format(), session.Sink().Name())
		err = wait(ctx)
	}

	if closeErr := session.Close(); closeErr != nil {
		log.Printf("Close error: %v", closeErr)
		if err == nil {
			err = closeErr
		}
	}
	return err
}
