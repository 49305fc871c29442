package gps

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

const (
	lineRMC     = "$GNRMC,120000.00,A,4807.038,N,01131.000,E,022.4,084.4,230394,,,*1B"
	lineRMCVoid = "$GNRMC,120001.00,V,4807.038,N,01131.000,E,,,230394,,,N*53"
	lineVTG     = "$GNVTG,,,,,,,,022.4,N,041.5,K,*4C"
	lineGGA     = "$GNGGA,120000.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,,,,*61"
	lineGLL     = "$GNGLL,4807.038,N,01131.000,E,120000.00,A,A*7E"
	lineGSA     = "$GNGSA,A,3,10,07,05,02,29,04,08,13,,,,,1.72,1.03,1.38*0A"
)

const (
	scriptNoData  = "<no data>"
	scriptGarbage = "<garbage>"
)

// scriptSource replays a fixed list of lines, then reports end.
type scriptSource struct {
	lines []string
	reads int
	end   error
}

func newScript(lines ...string) *scriptSource {
	return &scriptSource{lines: lines}
}

func (s *scriptSource) ReadLine(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.reads++
	if len(s.lines) == 0 {
		if s.end != nil {
			return nil, s.end
		}
		return nil, ErrClosed
	}
	l := s.lines[0]
	s.lines = s.lines[1:]
	switch l {
	case scriptNoData:
		return nil, ErrNoData
	case scriptGarbage:
		return []byte{'$', 'G', 'N', 0xff, 0xfe, ','}, nil
	}
	return []byte(l + "\r\n"), nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}
