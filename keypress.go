// ABOUTME: Blocking waits for the non-TUI run modes
// ABOUTME: Returns on a keypress, end of input, or an interrupt signal
package main

import (
	"bufio"
	"context"
	"log"
	"os"

	"golang.org/x/term"
)

// waitForKey blocks until a key is pressed on stdin or ctx is done. A
// terminal is switched to raw mode so any single key counts; otherwise a
// full line (or EOF) is needed.
func waitForKey(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	pressed := make(chan struct{}, 1)

	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			log.Printf("Raw mode unavailable, falling back to line input: %v", err)
		} else {
			defer term.Restore(fd, state)
		}
		log.Printf("Press any key to stop\r")
		go func() {
			buf := make([]byte, 1)
			os.Stdin.Read(buf)
			pressed <- struct{}{}
		}()
	} else {
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			pressed <- struct{}{}
		}()
	}

	select {
	case <-pressed:
	case <-ctx.Done():
		log.Printf("Interrupted")
	}
	return nil
}

// waitForSignal blocks until ctx is done
func waitForSignal(ctx context.Context) error {
	log.Printf("Serving, press Ctrl+C to stop")
	<-ctx.Done()
	log.Printf("Shutting down")
	return nil
}
