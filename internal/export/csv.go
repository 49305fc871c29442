package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"

	"gnsslog/internal/gps"
	"gnsslog/internal/nmea"
)

// CSVHeader is the column set written by CSVWriter.
var CSVHeader = []string{"timestamp_utc", "latitude_deg", "longitude_deg", "altitude_m"}

const csvNamePattern = "GPS_%Y-%m-%d_%H%M%S.csv"

// CSVFileName names a recording started at now (UTC).
func CSVFileName(now time.Time) string {
	s, err := strftime.Format(csvNamePattern, now.UTC())
	if err != nil {
		return "GPS_" + now.UTC().Format("2006-01-02_150405") + ".csv"
	}
	return s
}

// CSVWriter appends one row per waypoint. Absent values are written as empty
// cells. Each row is flushed as it is written so a killed recording keeps
// everything up to the last fix.
type CSVWriter struct {
	mu    sync.Mutex
	path  string
	c     io.Closer
	w     *csv.Writer
	count int

	// Progress, when set, receives "Written waypoint N" after every row.
	Progress io.Writer
	log      *log.Logger
}

// NewCSVWriter writes the header to w and returns a writer appending to it.
func NewCSVWriter(w io.Writer, logger *log.Logger) (*CSVWriter, error) {
	if logger == nil {
		logger = log.Default()
	}
	cw := &CSVWriter{w: csv.NewWriter(w), log: logger}
	if c, ok := w.(io.Closer); ok {
		cw.c = c
	}
	if err := cw.w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	cw.w.Flush()
	if err := cw.w.Error(); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	return cw, nil
}

// CreateCSV creates dir/GPS_<timestamp>.csv and writes the header.
func CreateCSV(dir string, now time.Time, logger *log.Logger) (*CSVWriter, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, CSVFileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	cw, err := NewCSVWriter(f, logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	cw.path = path
	cw.log.Debug("written csv header", "path", path)
	return cw, nil
}

// Path is the file being written, empty for writers not made by CreateCSV.
func (c *CSVWriter) Path() string { return c.path }

// Count is the number of rows written so far.
func (c *CSVWriter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Row renders wp in CSVHeader order.
func Row(wp gps.Waypoint) []string {
	ts := ""
	if wp.TimestampUTC != nil {
		ts = nmea.FormatTimestamp(*wp.TimestampUTC)
	}
	return []string{ts, cell(wp.LatitudeDeg), cell(wp.LongitudeDeg), cell(wp.AltitudeM)}
}

func (c *CSVWriter) WriteWaypoint(_ context.Context, wp gps.Waypoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write(Row(wp)); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	if c.Progress != nil {
		fmt.Fprintf(c.Progress, "Written waypoint %d\n", c.count)
	}
	c.count++
	return nil
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	err := c.w.Error()
	if c.c != nil {
		if cerr := c.c.Close(); err == nil {
			err = cerr
		}
		c.c = nil
	}
	return err
}
