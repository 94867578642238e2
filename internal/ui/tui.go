// ABOUTME: TUI initialization and control
// ABOUTME: Runs the status view until a key is pressed or the context ends
package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
)

// Run shows the status view and blocks until the user presses a quit key
// or ctx is done
func Run(ctx context.Context, poll StatusFunc, vol output.VolumeControl) error {
	p := tea.NewProgram(NewModel(poll, vol), tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// Cancelled from outside, not a UI failure
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}
