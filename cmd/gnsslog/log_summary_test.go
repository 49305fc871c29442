package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"gnsslog/internal/replay"
)

func withChecksum(body string) string {
	return "$" + body + "*" + gonmea.Checksum(body)
}

func TestSummarizeLineLog(t *testing.T) {
	rmc := withChecksum("GNRMC,120000.00,A,4807.038,N,01131.000,E,,,230394,,,A")
	gll := "$GNGLL,4807.038,N,01131.000,E,120000.00,A,A*00" // wrong checksum
	recs := []replay.Record{
		{At: 0, Line: nil},
		{At: 0, Line: []byte(rmc)},
		{At: 200 * time.Millisecond, Line: []byte(gll)},
		{At: 300 * time.Millisecond, Line: []byte{}},
		{At: 0, Line: nil},
		{At: 1 * time.Second, Line: []byte(rmc)},
		{At: 1 * time.Second, Line: []byte("garbage")},
	}

	s := summarizeLineLog(recs)
	if s.Segments != 2 {
		t.Fatalf("segments=%d want %d", s.Segments, 2)
	}
	if s.Lines != 5 || s.Empty != 1 || s.Invalid != 1 || s.BadChecksum != 1 {
		t.Fatalf("summary=%+v", s)
	}
	if s.IDCounts["GNRMC"] != 2 || s.IDCounts["GNGLL"] != 1 {
		t.Fatalf("counts=%v", s.IDCounts)
	}
	if s.MaxDuration != 1*time.Second {
		t.Fatalf("maxDuration=%s want %s", s.MaxDuration, 1*time.Second)
	}
}

func TestSummarizeLineLog_NoStartIsOneSegment(t *testing.T) {
	s := summarizeLineLog([]replay.Record{{At: 0, Line: []byte("$GNGSA,A,3")}})
	if s.Segments != 1 || s.BadChecksum != 0 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPrintLogSummary_PrintsExpectedFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "raw.log")
	w, err := replay.CreateWriter(logPath)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	now := time.Now()
	for _, l := range []string{withChecksum("GNRMC,,V,,,,,,,,,,N"), withChecksum("GNGLL,,,,,,V,N")} {
		if err := w.WriteLine(now, []byte(l+"\r\n")); err != nil {
			t.Fatalf("WriteLine() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	var out bytes.Buffer
	if err := printLogSummary(&out, logPath); err != nil {
		t.Fatalf("printLogSummary() error: %v", err)
	}
	for _, want := range []string{"segments: 1\n", "lines: 2\n", "bad_checksums: 0\n", "  GNGLL: 1\n", "  GNRMC: 1\n"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := printLogSummary(&out, " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
