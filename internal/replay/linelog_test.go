package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gnsslog/internal/gps"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	fs.slept = append(fs.slept, d)
	return nil
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, 2447
10, 24 47 4e
20,
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 records, got %d", len(recs))
	}
	if recs[0].Line != nil {
		t.Fatalf("expected START marker (nil line), got %v", recs[0].Line)
	}
	if string(recs[1].Line) != "$G" {
		t.Fatalf("unexpected line 1: %q", recs[1].Line)
	}
	if recs[2].At != 10*time.Nanosecond || string(recs[2].Line) != "$GN" {
		t.Fatalf("unexpected record 2: %+v", recs[2])
	}
	if recs[3].Line == nil || len(recs[3].Line) != 0 {
		t.Fatalf("expected empty (non-marker) line, got %v", recs[3].Line)
	}
}

func TestReaderReadAll_InvalidLine(t *testing.T) {
	for _, in := range []string{"not-a-valid-line\n", "-5,2447\n", "x,2447\n", "5,zz\n", ",2447\n"} {
		if _, err := NewReader(strings.NewReader(in)).ReadAll(); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestSource_RespectsTimingAndStart(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 1 * time.Second, Line: nil},
		{At: 1 * time.Second, Line: []byte("a")},
		{At: 1*time.Second + 100*time.Nanosecond, Line: []byte("b")},
		{At: 2 * time.Second, Line: nil},
		{At: 2*time.Second + 50*time.Nanosecond, Line: []byte("c")},
	}
	src, err := NewSource(recs, 1.0, false, fs)
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}

	var got []string
	for {
		line, err := src.ReadLine(context.Background())
		if errors.Is(err, gps.ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("ReadLine() error: %v", err)
		}
		got = append(got, string(line))
	}

	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("lines = %v", got)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestSource_SpeedMultiplierAndLoop(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Line: []byte("1")},
		{At: 100 * time.Nanosecond, Line: []byte("2")},
	}
	src, err := NewSource(recs, 2.0, true, fs)
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}

	var got []string
	for i := 0; i < 5; i++ {
		line, err := src.ReadLine(context.Background())
		if err != nil {
			t.Fatalf("ReadLine() error: %v", err)
		}
		got = append(got, string(line))
	}
	if !reflect.DeepEqual(got, []string{"1", "2", "1", "2", "1"}) {
		t.Fatalf("lines = %v", got)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50, 50}) {
		t.Fatalf("slept = %v, want [50ns 50ns]", fs.slept)
	}
}

func TestNewSource_Invalid(t *testing.T) {
	recs := []Record{{At: 0, Line: []byte("x")}}
	if _, err := NewSource(recs, 0, false, nil); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if _, err := NewSource(nil, 1, false, nil); err == nil {
		t.Fatalf("expected error for no records")
	}
}

func TestSource_CancelledWhileWaiting(t *testing.T) {
	recs := []Record{
		{At: 0, Line: []byte("1")},
		{At: time.Hour, Line: []byte("2")},
	}
	src, err := NewSource(recs, 1, false, nil)
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.ReadLine(ctx); err != nil {
		t.Fatalf("first ReadLine() error: %v", err)
	}
	if _, err := src.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)

	if err := w.WriteLine(time.Unix(0, 20), []byte("$GN\r\n")); err != nil {
		t.Fatalf("WriteLine() error: %v", err)
	}
	if err := w.WriteLine(time.Unix(0, 30), nil); err == nil {
		t.Fatalf("expected error for nil line")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteLine(time.Unix(0, 40), []byte("x")); err == nil {
		t.Fatalf("expected error after close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,24474e\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}

func TestRecordReplay_FramesSamePackages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	linesIn := []string{
		"$GNRMC,120000.00,A,4807.038,N,01131.000,E,022.4,084.4,230394,,,*1B\r\n",
		"$GNVTG,,,,,,,,022.4,N,041.5,K,*4C\r\n",
		string([]byte{'$', 0xff, 0xfe, '\r', '\n'}),
		"$GNGGA,120000.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,,,,*61\r\n",
		"$GNGLL,4807.038,N,01131.000,E,120000.00,A,A*7E\r\n",
	}
	tap := w.Tap(func(err error) { t.Errorf("tap: %v", err) })
	for _, l := range linesIn {
		tap([]byte(l))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	recs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if len(recs) != len(linesIn)+1 {
		t.Fatalf("records = %d", len(recs))
	}
	if got := recs[3].Line; !reflect.DeepEqual(got, []byte{'$', 0xff, 0xfe}) {
		t.Fatalf("undecodable bytes not preserved: %x", got)
	}

	src, err := NewSource(recs, 1000, false, &fakeSleeper{})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	f := gps.NewFramer(src, gps.FramerOptions{})
	pkg, err := f.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if len(pkg) != 4 {
		t.Fatalf("package has %d sentences, want 4", len(pkg))
	}
	if f.Stats().DecodeErrors != 1 {
		t.Fatalf("decode errors = %d, want 1", f.Stats().DecodeErrors)
	}
}
