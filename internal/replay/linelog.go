// Package replay records raw receiver lines to a log file and plays them back
// as a line source with their original timing.
package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gnsslog/internal/gps"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<hex>
//   where t_ns is nanoseconds since START and hex is the raw line as received,
//   terminator stripped. Hex keeps undecodable bytes intact.

type Record struct {
	At time.Duration
	// Line is nil for a START marker.
	Line []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{At: 0, Line: nil})
			continue
		}

		comma := strings.IndexByte(line, ',')
		if comma < 0 {
			return nil, fmt.Errorf("invalid replay line (missing comma): %q", line)
		}
		tsStr := strings.TrimSpace(line[:comma])
		hexStr := strings.TrimSpace(line[comma+1:])
		if tsStr == "" {
			return nil, fmt.Errorf("invalid replay line (empty timestamp): %q", line)
		}

		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid replay timestamp %q: %w", tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
		}

		hexStr = strings.ReplaceAll(hexStr, " ", "")
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, fmt.Errorf("invalid replay hex payload: %w", err)
		}
		// An empty payload is a recorded empty line (read timeout on the wire).
		if b == nil {
			b = []byte{}
		}

		recs = append(recs, Record{At: time.Duration(tsNs), Line: b})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile reads every record of the log at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer appends records to a log file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

// WriteLine records one raw line. Trailing CR/LF are not stored.
func (ww *Writer) WriteLine(now time.Time, line []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if line == nil {
		return errors.New("line is nil")
	}
	line = trimEOL(line)

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(line))
	return err
}

// Tap returns a callback suitable for gps.FramerOptions.OnLine. Write errors
// are passed to onErr (may be nil).
func (ww *Writer) Tap(onErr func(error)) func([]byte) {
	return func(line []byte) {
		if err := ww.WriteLine(time.Now(), line); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Source replays records as a gps.LineSource, waiting between lines for
// their recorded spacing. START markers reset the origin.
//
// speed: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
type Source struct {
	records []Record
	speed   float64
	loop    bool
	sleeper Sleeper

	idx      int
	origin   time.Duration
	lastAt   time.Duration
	haveLast bool
}

// NewSource validates its arguments; sleeper may be nil for real time.
func NewSource(records []Record, speed float64, loop bool, sleeper Sleeper) (*Source, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("speed must be > 0")
	}
	if len(records) == 0 {
		return nil, errors.New("no records")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	return &Source{records: records, speed: speed, loop: loop, sleeper: sleeper}, nil
}

// OpenSource reads the log at path and returns a source for it.
func OpenSource(path string, speed float64, loop bool) (*Source, error) {
	recs, err := ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	return NewSource(recs, speed, loop, nil)
}

func (s *Source) ReadLine(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.idx >= len(s.records) {
			if !s.loop {
				return nil, gps.ErrClosed
			}
			s.idx, s.origin, s.lastAt, s.haveLast = 0, 0, 0, false
		}
		r := s.records[s.idx]
		s.idx++

		if r.Line == nil {
			s.origin = r.At
			s.lastAt = 0
			s.haveLast = false
			continue
		}

		at := r.At - s.origin
		if at < 0 {
			at = 0
		}
		if s.haveLast {
			wait := at - s.lastAt
			if wait < 0 {
				wait = 0
			}
			wait = time.Duration(float64(wait) / s.speed)
			if wait > 0 {
				if err := s.sleeper.Sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
		}
		s.lastAt = at
		s.haveLast = true
		return append([]byte(nil), r.Line...), nil
	}
}
