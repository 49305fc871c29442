package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gnsslog/internal/nmea"
)

// LocalColumn is the column AddLocalTimestamp appends.
const LocalColumn = "timestamp_cet"

var ErrLocalColumnExists = errors.New("a " + LocalColumn + " column already exists in the file")

// AddLocalTimestamp rewrites the CSV at path with a LocalColumn holding each
// row's timestamp_utc shifted by offset. Rows with any empty cell are
// dropped. It returns the number of rows kept. The file is replaced
// atomically; on error it is left untouched.
func AddLocalTimestamp(path string, offset time.Duration) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	r := csv.NewReader(f)
	records, err := r.ReadAll()
	_ = f.Close()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("read %s: missing header", path)
	}

	header := records[0]
	if slices.Contains(header, LocalColumn) {
		return 0, ErrLocalColumnExists
	}
	utcIdx := slices.Index(header, "timestamp_utc")
	if utcIdx < 0 {
		return 0, fmt.Errorf("read %s: no timestamp_utc column", path)
	}

	out := make([][]string, 0, len(records))
	out = append(out, append(slices.Clone(header), LocalColumn))
	for i, rec := range records[1:] {
		if slices.Contains(rec, "") {
			continue
		}
		local, err := nmea.ToLocal(rec[utcIdx], offset)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, append(slices.Clone(rec), local))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".gnsslog-*.csv")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	if fi, err := os.Stat(path); err == nil {
		_ = tmp.Chmod(fi.Mode().Perm())
	}
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(out); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return len(out) - 1, nil
}
