package gps

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Serial defaults for u-blox style receivers.
const (
	DefaultBaud        = 9600
	DefaultStopBits    = 1
	DefaultReadTimeout = time.Second
)

// SerialConfig describes how to open a receiver's serial port.
//
// Device may be empty to auto-detect the first /dev/ttyACM* or /dev/ttyUSB*.
// Driver selects the implementation: "termios" (Linux only), "bugst"
// (go.bug.st/serial, portable) or empty for termios on Linux and bugst
// elsewhere.
type SerialConfig struct {
	Device      string
	Baud        int
	StopBits    int
	ReadTimeout time.Duration
	Driver      string
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = defaultDriver
	}
	return c
}

// OpenSerial opens the port in raw 8N1 (or 8N2) mode with a per-read timeout.
// Reads that time out return (0, nil). The resolved config is returned so the
// caller can log the auto-detected device.
func OpenSerial(cfg SerialConfig) (io.ReadCloser, SerialConfig, error) {
	cfg = cfg.withDefaults()
	cfg.Device = strings.TrimSpace(cfg.Device)
	if cfg.Device == "" {
		cfg.Device = autoDetectDevice()
		if cfg.Device == "" {
			return nil, cfg, fmt.Errorf("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	if cfg.StopBits != 1 && cfg.StopBits != 2 {
		return nil, cfg, fmt.Errorf("unsupported stop bits %d", cfg.StopBits)
	}

	var (
		port io.ReadCloser
		err  error
	)
	switch cfg.Driver {
	case "termios":
		port, err = openTermios(cfg)
	case "bugst":
		port, err = openBugst(cfg)
	default:
		return nil, cfg, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, cfg, fmt.Errorf("gps open failed device=%s baud=%d: %w", cfg.Device, cfg.Baud, err)
	}
	return port, cfg, nil
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
