// ABOUTME: Tests for flag handling in the tinysynth command
// ABOUTME: Checks level validation and how flags map onto the session config
package main

import (
	"strings"
	"testing"

	"github.com/mitchpk/tinysynth/pkg/synth"
)

func TestCheckLevels(t *testing.T) {
	tests := []struct {
		name        string
		gain        float64
		volume      int
		errContains string
	}{
		{"defaults", synth.DefaultGain, 100, ""},
		{"muted", synth.DefaultGain, 0, ""},
		{"zero gain", 0, 100, "--gain"},
		{"negative gain", -1, 100, "--gain"},
		{"negative volume", 1, -1, "--volume"},
		{"loud volume", 1, 101, "--volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkLevels(tt.gain, tt.volume)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("err = %v, want it to mention %s", err, tt.errContains)
			}
		})
	}
}

func TestSessionConfigLevels(t *testing.T) {
	defer func(g, s float64, v int, e string) {
		gain, spread, volume, encoding = g, s, v, e
	}(gain, spread, volume, encoding)
	encoding = "f32"

	tests := []struct {
		name         string
		gain         float64
		spread       float64
		volume       int
		wantNoSpread bool
		wantErr      bool
	}{
		{"defaults", synth.DefaultGain, synth.DefaultSpread, 100, false, false},
		{"zero spread", synth.DefaultGain, 0, 100, true, false},
		{"zero volume", synth.DefaultGain, synth.DefaultSpread, 0, false, false},
		{"zero gain", 0, synth.DefaultSpread, 100, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gain, spread, volume = tt.gain, tt.spread, tt.volume

			config, err := sessionConfig(playCmd)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Patch.NoSpread != tt.wantNoSpread {
				t.Errorf("NoSpread = %v, want %v", config.Patch.NoSpread, tt.wantNoSpread)
			}
			if config.Volume != tt.volume {
				t.Errorf("Volume = %d, want %d", config.Volume, tt.volume)
			}
		})
	}
}
