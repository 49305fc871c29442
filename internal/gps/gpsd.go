package gps

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

const (
	gpsdMinBackoff = 250 * time.Millisecond
	gpsdMaxBackoff = 10 * time.Second
)

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch asks gpsd to relay the receiver's raw NMEA sentences.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"nmea\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdVersion struct {
	Release string `json:"release"`
}

type gpsdDevices struct {
	Devices []struct {
		Path   string `json:"path"`
		Driver string `json:"driver"`
	} `json:"devices"`
}

type gpsdError struct {
	Message string `json:"message"`
}

// GPSDSource is a LineSource reading the NMEA relayed by a gpsd daemon. gpsd
// interleaves its own JSON reports with the sentences; those are consumed
// here. A lost connection is retried with exponential backoff and reported
// as ErrNoData meanwhile, so the source never closes on its own.
type GPSDSource struct {
	addr    string
	timeout time.Duration
	log     *log.Logger
	dial    func(ctx context.Context, addr string) (net.Conn, error)

	mu      sync.Mutex
	conn    net.Conn
	br      *bufio.Reader
	partial []byte
	backoff time.Duration
	device  string
	closed  bool
}

// NewGPSDSource returns a source for gpsd at addr (127.0.0.1:2947 when empty).
// readTimeout bounds each read.
func NewGPSDSource(addr string, readTimeout time.Duration, logger *log.Logger) *GPSDSource {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GPSDSource{addr: addr, timeout: readTimeout, log: logger, dial: dialGPSD, backoff: gpsdMinBackoff}
}

// Addr is the gpsd address this source connects to.
func (s *GPSDSource) Addr() string { return s.addr }

// Device is the receiver path gpsd last reported, if any.
func (s *GPSDSource) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *GPSDSource) ReadLine(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	conn, br := s.conn, s.br
	s.mu.Unlock()

	if conn == nil {
		var err error
		conn, br, err = s.connect(ctx)
		if err != nil {
			return nil, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.timeout))
		chunk, err := br.ReadBytes('\n')
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.partial = append(s.partial, chunk...)
				if len(s.partial) >= maxLineLen {
					// No terminator in sight; hand out what we have as one line.
					line := s.partial[:maxLineLen:maxLineLen]
					s.partial = append([]byte(nil), s.partial[maxLineLen:]...)
					s.log.Debug("gpsd line too long", "addr", s.addr, "len", maxLineLen)
					return line, nil
				}
				return nil, ErrNoData
			}
			s.log.Warn("gpsd read stopped", "addr", s.addr, "err", err)
			s.dropConn(conn)
			return nil, ErrNoData
		}
		line := chunk
		if len(s.partial) > 0 {
			line = append(s.partial, chunk...)
			s.partial = nil
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 && line[0] == '{' {
			s.applyReport(line)
			continue
		}
		return line, nil
	}
}

func (s *GPSDSource) connect(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	conn, err := s.dial(ctx, s.addr)
	if err == nil {
		if werr := gpsdWatch(conn); werr != nil {
			_ = conn.Close()
			err = fmt.Errorf("gpsd watch failed: %w", werr)
		}
	}
	if err != nil {
		wait := s.backoff
		s.log.Warn("gpsd unavailable", "addr", s.addr, "retry_in", wait, "err", err)
		if s.backoff < gpsdMaxBackoff {
			s.backoff *= 2
			if s.backoff > gpsdMaxBackoff {
				s.backoff = gpsdMaxBackoff
			}
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
		return nil, nil, ErrNoData
	}

	s.log.Info("gpsd connected", "addr", s.addr)
	br := bufio.NewReaderSize(conn, 4096)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return nil, nil, ErrClosed
	}
	s.conn, s.br, s.partial = conn, br, nil
	s.backoff = gpsdMinBackoff
	return conn, br, nil
}

func (s *GPSDSource) dropConn(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn, s.br, s.partial = nil, nil, nil
	}
	s.mu.Unlock()
}

func (s *GPSDSource) applyReport(line []byte) {
	var base gpsdMsgBase
	if err := json.Unmarshal(line, &base); err != nil {
		s.log.Debug("gpsd json parse failed", "err", err)
		return
	}
	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "VERSION":
		var v gpsdVersion
		if err := json.Unmarshal(line, &v); err == nil {
			s.log.Debug("gpsd version", "release", v.Release)
		}
	case "DEVICES":
		var d gpsdDevices
		if err := json.Unmarshal(line, &d); err == nil && len(d.Devices) > 0 {
			s.mu.Lock()
			s.device = d.Devices[0].Path
			s.mu.Unlock()
			s.log.Info("gpsd device", "path", d.Devices[0].Path, "driver", d.Devices[0].Driver)
		}
	case "ERROR":
		var e gpsdError
		if err := json.Unmarshal(line, &e); err == nil {
			s.log.Warn("gpsd error", "message", e.Message)
		}
	default:
		// WATCH, TPV, SKY and friends carry nothing the framer needs.
	}
}

// Close drops the connection; subsequent reads return ErrClosed.
func (s *GPSDSource) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn, s.br = nil, nil
	s.closed = true
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
