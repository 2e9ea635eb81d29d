package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinner writes an animated waiting indicator to w until stopped.
type spinner struct {
	w    io.Writer
	done chan struct{}
	over chan struct{}
}

func startSpinner(w io.Writer) *spinner {
	s := &spinner{w: w, done: make(chan struct{}), over: make(chan struct{})}
	go s.loop()
	return s
}

func (s *spinner) loop() {
	defer close(s.over)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-s.done:
			// Blank the spinner line before the reply starts.
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", 24))
			return
		case <-ticker.C:
			fmt.Fprintf(s.w, "\rLoading… %s", spinnerFrames[i%len(spinnerFrames)])
			i++
		}
	}
}

// Stop halts the animation and clears the line. Safe to call once.
func (s *spinner) Stop() {
	close(s.done)
	<-s.over
}
