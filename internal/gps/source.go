package gps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoData means nothing arrived within the source's read timeout. Try again.
	ErrNoData = errors.New("gps: no data")
	// ErrClosed means the source is gone and will never produce another line.
	ErrClosed = errors.New("gps: source closed")
)

// LineSource yields one raw line per call, without the line terminator.
// Implementations bound each call by their own read timeout and return
// ErrNoData when it expires.
type LineSource interface {
	ReadLine(ctx context.Context) ([]byte, error)
}

// maxLineLen bounds a line without terminator. NMEA caps sentences at 82
// bytes; anything much longer is line noise.
const maxLineLen = 4096

// PortSource splits the byte stream of a port into lines. The port is expected
// to return (0, nil) when its read timeout expires, as the serial drivers in
// this package do. io.EOF and any other read error close the source.
type PortSource struct {
	r   io.Reader
	buf []byte
	tmp []byte
	err error
}

// NewPortSource wraps r. If r is an io.Closer, Close closes it.
func NewPortSource(r io.Reader) *PortSource {
	return &PortSource{r: r, tmp: make([]byte, 512)}
}

func (p *PortSource) ReadLine(ctx context.Context) ([]byte, error) {
	for {
		if i := bytes.IndexByte(p.buf, '\n'); i >= 0 {
			return p.take(i, i+1), nil
		}
		if len(p.buf) >= maxLineLen {
			return p.take(len(p.buf), len(p.buf)), nil
		}
		if p.err != nil {
			// Flush a trailing line without terminator before reporting closure.
			if len(p.buf) > 0 {
				return p.take(len(p.buf), len(p.buf)), nil
			}
			return nil, p.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := p.r.Read(p.tmp)
		p.buf = append(p.buf, p.tmp[:n]...)
		switch {
		case err == nil && n == 0:
			return nil, ErrNoData
		case errors.Is(err, io.EOF):
			p.err = ErrClosed
		case err != nil:
			p.err = fmt.Errorf("%w: %v", ErrClosed, err)
		}
	}
}

// take returns buf[:end] as a fresh slice and drops buf[:next].
func (p *PortSource) take(end, next int) []byte {
	line := append([]byte(nil), p.buf[:end]...)
	p.buf = append(p.buf[:0], p.buf[next:]...)
	return line
}

func (p *PortSource) Close() error {
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
