package gps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/looplab/fsm"

	"gnsslog/internal/nmea"
)

// Termination selects what closes an open package.
type Termination int

const (
	// TerminateOnGLL closes a package on GLL (included as its last member).
	// A new RMC before any GLL also closes it, so a receiver that skips GLL
	// still produces one package per cycle.
	TerminateOnGLL Termination = iota
	// TerminateOnNextRMC closes a package only when the next RMC arrives.
	TerminateOnNextRMC
)

func (t Termination) String() string {
	switch t {
	case TerminateOnNextRMC:
		return "next_rmc"
	default:
		return "gll"
	}
}

// ParseTermination accepts "gll" and "next_rmc". Empty means TerminateOnGLL.
func ParseTermination(s string) (Termination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gll":
		return TerminateOnGLL, nil
	case "next_rmc":
		return TerminateOnNextRMC, nil
	default:
		return 0, fmt.Errorf("unknown termination %q (want gll or next_rmc)", s)
	}
}

const (
	stateIdle       = "idle"
	stateCollecting = "collecting"

	eventOpen  = "open"
	eventClose = "close"
)

// FramerOptions configures NewFramer. The zero value frames GN sentences and
// terminates on GLL.
type FramerOptions struct {
	Termination Termination
	Talkers     []string
	Logger      *log.Logger

	// OnLine, when set, sees every raw line read from the source before it is
	// decoded. The slice must not be retained.
	OnLine func(line []byte)
}

// FramerStats counts what the framer has seen since it was created.
type FramerStats struct {
	Lines        uint64 `json:"lines"`
	Packages     uint64 `json:"packages"`
	DecodeErrors uint64 `json:"decode_errors"`
	// Discarded counts sentences dropped while no package was open.
	Discarded uint64 `json:"discarded"`
}

// Framer groups decoded sentences into packages. It is not safe for
// concurrent use; one goroutine owns a framer and its source.
type Framer struct {
	src    LineSource
	dec    nmea.Decoder
	term   Termination
	log    *log.Logger
	onLine func([]byte)

	fsm   *fsm.FSM
	cur   Package
	stats FramerStats
}

// NewFramer returns a framer reading from src. src may be nil when only Feed
// is used.
func NewFramer(src LineSource, opts FramerOptions) *Framer {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	f := &Framer{
		src:    src,
		dec:    nmea.NewDecoder(opts.Talkers...),
		term:   opts.Termination,
		log:    logger,
		onLine: opts.OnLine,
	}
	f.fsm = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventOpen, Src: []string{stateIdle}, Dst: stateCollecting},
			{Name: eventClose, Src: []string{stateCollecting}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logger.Debug("framer state", "src", e.Src, "dst", e.Dst)
			},
		},
	)
	return f
}

// State returns "idle" or "collecting".
func (f *Framer) State() string { return f.fsm.Current() }

// Stats returns the counters so far.
func (f *Framer) Stats() FramerStats { return f.stats }

func (f *Framer) transition(event string) {
	if err := f.fsm.Event(event); err != nil {
		f.log.Error("framer transition failed", "event", event, "state", f.fsm.Current(), "err", err)
	}
}

// Feed advances the state machine by one sentence. It returns a package when
// s completes one. When an RMC closes the previous package it also opens the
// next one, so no sentence is lost.
func (f *Framer) Feed(s nmea.Sentence) (Package, bool) {
	if f.fsm.Current() == stateIdle {
		if s.Kind != nmea.KindRMC {
			f.stats.Discarded++
			return nil, false
		}
		f.cur = Package{s}
		f.transition(eventOpen)
		return nil, false
	}

	switch {
	case s.Kind == nmea.KindRMC:
		done := f.cur
		f.transition(eventClose)
		f.cur = Package{s}
		f.transition(eventOpen)
		f.stats.Packages++
		return done, true
	case s.Kind == nmea.KindGLL && f.term == TerminateOnGLL:
		done := append(f.cur, s)
		f.cur = nil
		f.transition(eventClose)
		f.stats.Packages++
		return done, true
	default:
		f.cur = append(f.cur, s)
		return nil, false
	}
}

// Next reads from the source until a package completes. Decode failures are
// logged and skipped; ErrNoData is retried. It returns the context error on
// cancellation and a wrapped ErrClosed when the source ends.
func (f *Framer) Next(ctx context.Context) (Package, error) {
	if f.src == nil {
		return nil, fmt.Errorf("framer has no source: %w", ErrClosed)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := f.src.ReadLine(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoData):
				continue
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.Is(err, ErrClosed):
				return nil, fmt.Errorf("framer: %w", err)
			default:
				return nil, fmt.Errorf("framer read: %w", err)
			}
		}
		f.stats.Lines++
		if f.onLine != nil {
			f.onLine(line)
		}

		s, err := f.dec.Decode(line)
		if err != nil {
			if errors.Is(err, nmea.ErrEmptyLine) {
				continue
			}
			f.stats.DecodeErrors++
			f.log.Debug("skipping line", "err", err)
			continue
		}
		if pkg, ok := f.Feed(s); ok {
			return pkg, nil
		}
	}
}
