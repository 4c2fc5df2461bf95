package display

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
)

// Spinner shows progress on a terminal. A disabled Spinner does nothing, so
// callers need not check.
type Spinner struct {
	s *spinner.Spinner
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewSpinner creates a spinner on f. It is disabled unless enabled is set and
// f is a terminal.
func NewSpinner(f *os.File, enabled bool) *Spinner {
	if !enabled || !IsTerminal(f) {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(f))
	return &Spinner{s: s}
}

// Start shows msg next to the spinner.
func (s *Spinner) Start(msg string) {
	if s.s == nil {
		return
	}
	s.s.Suffix = " " + msg
	s.s.Start()
}

// Update replaces the message.
func (s *Spinner) Update(msg string) {
	if s.s == nil {
		return
	}
	s.s.Lock()
	s.s.Suffix = " " + msg
	s.s.Unlock()
}

// Stop clears the spinner line.
func (s *Spinner) Stop() {
	if s.s == nil {
		return
	}
	s.s.Stop()
}

// Enabled reports whether the spinner draws anything.
func (s *Spinner) Enabled() bool {
	return s.s != nil
}
