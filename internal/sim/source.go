package sim

import (
	"context"
	"time"

	"gnsslog/internal/gps"
)

// Source serves Receiver cycles as a gps.LineSource, one cycle per Interval.
// Within a cycle lines are returned back to back.
type Source struct {
	Trajectory Trajectory
	Receiver   *Receiver
	// Interval defaults to one second.
	Interval time.Duration
	// Now defaults to time.Now; the first call fixes the start time.
	Now func() time.Time

	start   time.Time
	next    time.Time
	pending []string
}

func NewSource(tr Trajectory, lockAfter int) *Source {
	return &Source{Trajectory: tr, Receiver: &Receiver{LockAfter: lockAfter}}
}

func (s *Source) ReadLine(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.pending) == 0 {
		if err := s.waitCycle(ctx); err != nil {
			return nil, err
		}
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return []byte(line), nil
}

func (s *Source) waitCycle(ctx context.Context) error {
	now := s.now()
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if s.start.IsZero() {
		s.start = now
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	at := s.next
	s.next = s.next.Add(interval)
	if s.Receiver == nil {
		s.Receiver = &Receiver{}
	}
	var st State
	if s.Trajectory != nil {
		st = s.Trajectory.StateAt(at.Sub(s.start))
	}
	s.pending = s.Receiver.Cycle(at, st)
	if len(s.pending) == 0 {
		return gps.ErrNoData
	}
	return nil
}

func (s *Source) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
