package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"gnsslog/internal/nmea"
	"gnsslog/internal/replay"
)

type logSummary struct {
	Segments    int
	Lines       int
	Empty       int
	Invalid     int
	BadChecksum int
	MaxDuration time.Duration
	IDCounts    map[string]int
}

func summarizeLineLog(records []replay.Record) logSummary {
	s := logSummary{IDCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasLines := false
	for _, r := range records {
		if r.Line == nil {
			s.Segments++
			origin = r.At
			continue
		}
		hasLines = true
		s.Lines++
		if at := r.At - origin; at > s.MaxDuration {
			s.MaxDuration = at
		}

		sent, err := nmea.Decode(r.Line)
		switch {
		case err == nil:
			s.IDCounts[sent.ID]++
			if !checksumOK(sent.Raw) {
				s.BadChecksum++
			}
		case strings.TrimSpace(string(r.Line)) == "":
			s.Empty++
		default:
			s.Invalid++
		}
	}
	if s.Segments == 0 && hasLines {
		s.Segments = 1
	}
	return s
}

// checksumOK verifies the "*hh" suffix when present. Sentences without one
// are accepted.
func checksumOK(raw string) bool {
	body, sum, found := strings.Cut(strings.TrimPrefix(raw, "$"), "*")
	if !found {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(sum), gonmea.Checksum(body))
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeLineLog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "lines: %d\n", s.Lines)
	fmt.Fprintf(w, "empty_lines: %d\n", s.Empty)
	fmt.Fprintf(w, "invalid_lines: %d\n", s.Invalid)
	fmt.Fprintf(w, "bad_checksums: %d\n", s.BadChecksum)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	ids := make([]string, 0, len(s.IDCounts))
	for id := range s.IDCounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(w, "sentence_counts:\n")
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %d\n", id, s.IDCounts[id])
	}
	return nil
}
