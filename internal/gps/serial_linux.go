//go:build linux

package gps

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const defaultDriver = "termios"

// termiosPort reads with unix.Read so that a VTIME expiry surfaces as (0, nil)
// rather than the io.EOF os.File would report.
type termiosPort struct {
	fd        int
	closeOnce sync.Once
	closeErr  error
}

func (p *termiosPort) Read(b []byte) (int, error) {
	n, err := unix.Read(p.fd, b)
	if err == unix.EINTR || err == unix.EAGAIN {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (p *termiosPort) Close() error {
	p.closeOnce.Do(func() { p.closeErr = unix.Close(p.fd) })
	return p.closeErr
}

func openTermios(cfg SerialConfig) (*termiosPort, error) {
	flag := unix.O_RDWR | unix.O_NOCTTY
	fd, err := unix.Open(cfg.Device, flag, 0)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	spd, err := baudToUnix(cfg.Baud)
	if err != nil {
		return nil, err
	}

	// Raw mode for NMEA.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	// VMIN=0: a read returns after VTIME even when nothing arrived.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime(cfg.ReadTimeout)

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}
	ok = true
	return &termiosPort{fd: fd}, nil
}

// vtime converts a timeout to termios deciseconds (1..255).
func vtime(d time.Duration) uint8 {
	ds := d / (100 * time.Millisecond)
	if ds < 1 {
		return 1
	}
	if ds > 255 {
		return 255
	}
	return uint8(ds)
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
