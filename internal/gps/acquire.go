package gps

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Progress is notified while Acquire waits for a valid fix.
type Progress interface {
	// Tick is called once per package without a valid fix.
	Tick()
	// Done is called once when a valid fix arrives.
	Done()
}

// Acquire frames and assembles packages until one yields a valid waypoint and
// returns it without reading further. It only stops early on ctx cancellation
// or a closed source. progress may be nil.
func Acquire(ctx context.Context, f *Framer, a *Assembler, progress Progress) (Waypoint, error) {
	for {
		pkg, err := f.Next(ctx)
		if err != nil {
			return Waypoint{}, fmt.Errorf("acquire: %w", err)
		}
		wp := a.Assemble(pkg)
		if wp.IsValid() {
			if progress != nil {
				progress.Done()
			}
			return wp, nil
		}
		if progress != nil {
			progress.Tick()
		}
	}
}

// Spinner is a terminal Progress: an animated "Waiting for satellites..."
// line that is rewritten in place.
type Spinner struct {
	w    io.Writer
	dots int
}

func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

func (s *Spinner) Tick() {
	s.dots = s.dots%3 + 1
	msg := "\rWaiting for satellites" + strings.Repeat(".", s.dots)
	fmt.Fprintf(s.w, "%-40s", msg)
}

func (s *Spinner) Done() {
	fmt.Fprint(s.w, "\nSatellites found.\n")
}
