// ABOUTME: Diagnostic listener for a tinysynth stream server
// ABOUTME: Finds a server, syncs clocks, and reports chunk rate and lead time
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mitchpk/tinysynth/internal/discovery"
	"github.com/mitchpk/tinysynth/pkg/protocol"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	name       string
	codec      string
	bitDepth   int
	rate       int
	channels   int
	duration   time.Duration
	syncRounds int
	outFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tinysynth-listen",
	Short: "Connect to a tinysynth server and report on the stream",
	Long: `Connects to a tinysynth stream server (found over mDNS unless --server
is given), estimates the clock offset, then counts chunks and reports how
far ahead of the server clock they arrive.

Examples:
  tinysynth-listen
  tinysynth-listen --server 192.168.1.20:8927 --codec opus
  tinysynth-listen --bit-depth 16 --out capture.pcm --duration 10s`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&serverAddr, "server", "s", "", "Server address host:port (default: discover via mDNS)")
	f.StringVar(&name, "name", "tinysynth-listen", "Listener name")
	f.StringVar(&codec, "codec", "pcm", "Preferred codec (pcm, opus)")
	f.IntVar(&bitDepth, "bit-depth", 24, "PCM bit depth (16, 24)")
	f.IntVar(&rate, "rate", 0, "Requested sample rate (0 = server rate)")
	f.IntVar(&channels, "channels", 0, "Requested channel count (0 = server channels)")
	f.DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 = until interrupted)")
	f.IntVar(&syncRounds, "sync-rounds", 8, "Clock sync round trips")
	f.StringVarP(&outFile, "out", "o", "", "Write received chunk payloads to this file")
}

func run(cmd *cobra.Command, args []string) error {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	addr, err := resolveServer()
	if err != nil {
		return err
	}

	client := protocol.NewClient(protocol.Config{
		ServerAddr:       addr,
		ClientID:         uuid.New().String(),
		Name:             name,
		SupportedFormats: supportedFormats(),
		BufferCapacity:   1 << 20,
	})
	if err := client.Connect(); err != nil {
		return err
	}
	defer func() {
		client.SendGoodbye("user_request")
		client.Close()
	}()

	clock := newClock()
	offset, rtt, err := syncClock(ctx, client, clock)
	if err != nil {
		return err
	}
	log.Printf("Clock offset %dus, round trip %dus", offset, rtt)

	var out *os.File
	if outFile != "" {
		out, err = os.Create(outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
	}

	return receive(ctx, client, clock, offset, out)
}

func resolveServer() (string, error) {
	if serverAddr != "" {
		return serverAddr, nil
	}

	log.Printf("Searching for servers...")
	servers, err := discovery.Discover(3 * time.Second)
	if err != nil {
		return "", fmt.Errorf("%w, use --server", err)
	}
	for _, s := range servers {
		log.Printf("Found %s at %s", s.Name, s.Addr())
	}
	return servers[0].Addr(), nil
}

func supportedFormats() []protocol.AudioFormat {
	pcm := protocol.AudioFormat{Codec: "pcm", SampleRate: rate, Channels: channels, BitDepth: bitDepth}
	if codec == "opus" {
		return []protocol.AudioFormat{
			{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16},
			pcm,
		}
	}
	return []protocol.AudioFormat{pcm}
}

// clock is the listener's monotonic microsecond clock
type clock struct {
	start time.Time
}

func newClock() *clock {
	return &clock{start: time.Now()}
}

func (c *clock) micros() int64 {
	return time.Since(c.start).Microseconds()
}

// syncClock runs several client/time round trips and keeps the one with the
// smallest round trip. Offset is server clock minus local clock.
func syncClock(ctx context.Context, client *protocol.Client, c *clock) (offset, rtt int64, err error) {
	type sample struct{ offset, rtt int64 }
	var samples []sample

	for i := 0; i < syncRounds; i++ {
		t1 := c.micros()
		if err := client.SendTimeSync(t1); err != nil {
			return 0, 0, fmt.Errorf("failed to send time sync: %w", err)
		}

		select {
		case resp := <-client.TimeSyncResp:
			t4 := c.micros()
			if resp.ClientTransmitted != t1 {
				continue
			}
			samples = append(samples, sample{
				offset: ((resp.ServerReceived - t1) + (resp.ServerTransmitted - t4)) / 2,
				rtt:    (t4 - t1) - (resp.ServerTransmitted - resp.ServerReceived),
			})
		case <-time.After(2 * time.Second):
			log.Printf("Time sync round %d timed out", i+1)
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}

	if len(samples) == 0 {
		return 0, 0, fmt.Errorf("no time sync responses")
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].rtt < samples[j].rtt })
	return samples[0].offset, samples[0].rtt, nil
}

type stats struct {
	chunks   int
	bytes    int
	minLead  int64
	maxLead  int64
	lastTS   int64
	gaps     int
	interval time.Time
}

func (s *stats) add(chunk protocol.AudioChunk, lead int64) {
	if s.chunks == 0 || lead < s.minLead {
		s.minLead = lead
	}
	if s.chunks == 0 || lead > s.maxLead {
		s.maxLead = lead
	}
	if s.chunks > 0 && chunk.Timestamp <= s.lastTS {
		s.gaps++
	}
	s.lastTS = chunk.Timestamp
	s.chunks++
	s.bytes += len(chunk.Data)
}

func (s *stats) report() {
	elapsed := time.Since(s.interval).Seconds()
	if elapsed <= 0 || s.chunks == 0 {
		log.Printf("No chunks received")
		return
	}
	log.Printf("%d chunks, %.1f chunks/s, %.1f kB/s, lead %.1f-%.1fms, %d out of order",
		s.chunks, float64(s.chunks)/elapsed, float64(s.bytes)/elapsed/1000,
		float64(s.minLead)/1000, float64(s.maxLead)/1000, s.gaps)
}

func receive(ctx context.Context, client *protocol.Client, c *clock, offset int64, out *os.File) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	st := &stats{interval: time.Now()}
	for {
		select {
		case start := <-client.StreamStart:
			log.Printf("Stream started: %s %dHz %dch %d-bit", start.Codec, start.SampleRate, start.Channels, start.BitDepth)

		case end := <-client.StreamEnd:
			log.Printf("Stream ended: %s", end.Reason)
			st.report()
			st = &stats{interval: time.Now()}

		case state := <-client.ServerState:
			log.Printf("Server %s: preset %s, %d voices, %d frames", state.State, state.Preset, len(state.Voices), state.Frames)

		case chunk := <-client.AudioChunks:
			lead := chunk.Timestamp - (c.micros() + offset)
			st.add(chunk, lead)
			if out != nil {
				if _, err := out.Write(chunk.Data); err != nil {
					return fmt.Errorf("failed to write chunk: %w", err)
				}
			}

		case <-ticker.C:
			if !client.IsConnected() {
				return fmt.Errorf("connection lost")
			}
			st.report()
			st = &stats{interval: time.Now()}

		case <-ctx.Done():
			st.report()
			return nil
		}
	}
}
