package gps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"gnsslog/internal/geo"
)

// Sink receives every waypoint the service assembles.
type Sink interface {
	WriteWaypoint(ctx context.Context, wp Waypoint) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, wp Waypoint) error

func (f SinkFunc) WriteWaypoint(ctx context.Context, wp Waypoint) error { return f(ctx, wp) }

// ServiceOptions configures NewService. Source and Device are labels for the
// snapshot only.
type ServiceOptions struct {
	Source string
	Device string
	Sinks  []Sink
	Logger *log.Logger

	// Now is used to stamp packages; defaults to time.Now.
	Now func() time.Time
}

type Snapshot struct {
	Running bool   `json:"running"`
	Source  string `json:"source,omitempty"`
	Device  string `json:"device,omitempty"`

	FramerState string      `json:"framer_state,omitempty"`
	Stats       FramerStats `json:"stats"`

	Valid          bool      `json:"valid"`
	Waypoints      uint64    `json:"waypoints"`
	LastWaypoint   *Waypoint `json:"last_waypoint,omitempty"`
	LastPackage    []string  `json:"last_package,omitempty"`
	LastPackageUTC string    `json:"last_package_utc,omitempty"`
	TrackDistanceM float64   `json:"track_distance_m"`

	LastError string `json:"last_error,omitempty"`
}

// Service runs the framing pipeline continuously in its own goroutine and
// fans each waypoint out to the sinks. It owns the framer (and so the line
// source) while running.
type Service struct {
	framer *Framer
	asm    *Assembler
	opts   ServiceOptions
	log    *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	err    error

	last atomic.Value // Snapshot

	mu      sync.Mutex
	lastPos *[2]float64
}

func NewService(framer *Framer, opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		framer: framer,
		asm:    NewAssembler(opts.Logger),
		opts:   opts,
		log:    opts.Logger,
		done:   make(chan struct{}),
	}
	s.last.Store(Snapshot{Source: opts.Source, Device: opts.Device, FramerState: stateIdle})
	return s
}

// Start runs the pipeline in the background until ctx is cancelled, Close is
// called, or the source closes.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if s.framer == nil {
		return fmt.Errorf("gps service has no framer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.err = s.Run(childCtx)
	}()
	return nil
}

// Run is the blocking form of Start. It returns nil when ctx is cancelled and
// the framer's error when the source closes.
func (s *Service) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)

	s.log.Info("gps monitor started", "source", s.opts.Source, "device", s.opts.Device)
	for {
		pkg, err := s.framer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			s.setError(err.Error())
			s.log.Error("gps read stopped", "err", err)
			return err
		}
		s.Deliver(ctx, s.asm.Assemble(pkg))
	}
}

// Deliver records wp in the snapshot and hands it to every sink. Sink errors
// are logged and kept as the last error; they do not stop the service.
func (s *Service) Deliver(ctx context.Context, wp Waypoint) {
	s.mu.Lock()
	cur := s.Snapshot()
	cur.FramerState = s.framer.State()
	cur.Stats = s.framer.Stats()
	cur.Waypoints++
	cur.Valid = wp.IsValid()
	w := wp
	cur.LastWaypoint = &w
	cur.LastPackage = wp.RawPackage.Lines()
	cur.LastPackageUTC = s.opts.Now().UTC().Format(time.RFC3339Nano)
	if wp.IsValid() && wp.HasPosition() {
		pos := [2]float64{*wp.LatitudeDeg, *wp.LongitudeDeg}
		if s.lastPos != nil {
			cur.TrackDistanceM += geo.DistanceMeters(s.lastPos[0], s.lastPos[1], pos[0], pos[1])
		}
		s.lastPos = &pos
	}
	s.last.Store(cur)
	s.mu.Unlock()

	for _, sink := range s.opts.Sinks {
		if err := sink.WriteWaypoint(ctx, wp); err != nil {
			s.log.Warn("sink write failed", "err", err)
			s.setError(err.Error())
		}
	}
}

// Done is closed when a Start-ed service stops.
func (s *Service) Done() <-chan struct{} { return s.done }

// Err returns why a Start-ed service stopped; nil after cancellation.
func (s *Service) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Snapshot()
	cur.Running = running
	cur.FramerState = s.framer.State()
	cur.Stats = s.framer.Stats()
	s.last.Store(cur)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Snapshot()
	cur.LastError = msg
	// Validity follows the last waypoint only.
	s.last.Store(cur)
}
