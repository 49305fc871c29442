package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnsslog/internal/export"
	"gnsslog/internal/replay"
	"gnsslog/internal/web"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gnsslog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	code := run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const simConfig = `
gps:
  source: sim
sim:
  interval: 5ms
  lock_after: 2
log:
  level: warn
`

func writeReplayLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.log")
	w, err := replay.CreateWriter(path)
	require.NoError(t, err)
	now := time.Now()
	for _, l := range lines {
		require.NoError(t, w.WriteLine(now, []byte(l+"\r\n")))
	}
	require.NoError(t, w.Close())
	return path
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCmd(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: gnsslog")

	code, _, stderr = runCmd(t, "launch")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "launch"`)

	code, _, _ = runCmd(t, "monitor", "--bogus")
	assert.Equal(t, 2, code)

	code, _, _ = runCmd(t, "add-local-time")
	assert.Equal(t, 2, code)
}

func TestRun_ConfigErrors(t *testing.T) {
	code, _, stderr := runCmd(t, "monitor", "--source", "usb")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "gps.source must be one of")
}

func TestMonitor_ReplayPrintsEachWaypoint(t *testing.T) {
	logPath := writeReplayLog(t,
		"$GNRMC,120000.00,A,4807.038,N,01131.000,E,022.4,084.4,230394,,,A",
		"$GNVTG,084.4,T,,M,022.4,N,041.5,K,A",
		"$GNGGA,120000.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,",
		"$GNGLL,4807.038,N,01131.000,E,120000.00,A,A",
		"$GNRMC,120001.00,V,,,,,,,230394,,,N",
		"$GNGLL,,,,,120001.00,V,N",
	)
	cfg := writeConfig(t, "gps:\n  source: replay\nreplay:\n  path: "+logPath+"\n  speed: 100\nlog:\n  level: error\n")

	code, stdout, stderr := runCmd(t, "monitor", "--config", cfg)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 2, strings.Count(stdout, "Valid point:"))
	assert.Contains(t, stdout, "48.117300")
	assert.Contains(t, stdout, "41.5")
	assert.Contains(t, stdout, "UTM:")
}

func TestRaw_SimLimit(t *testing.T) {
	code, stdout, stderr := runCmd(t, "raw", "--config", writeConfig(t, simConfig), "--limit", "5")
	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "$GNRMC,"), lines[0])
}

func TestFix_WaitsForLock(t *testing.T) {
	code, stdout, stderr := runCmd(t, "fix", "--config", writeConfig(t, simConfig))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Waiting for satellites")
	assert.Contains(t, stdout, "Satellites found.")
	assert.Contains(t, stdout, "true")
}

func TestRecord_WritesCSVAndSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "track.db")
	rawPath := filepath.Join(dir, "raw.log")
	cfg := writeConfig(t, simConfig+"record:\n  csv_dir: "+dir+"\n  sqlite_path: "+dbPath+"\n  record_raw: "+rawPath+"\n")

	code, stdout, stderr := runCmd(t, "record", "--config", cfg, "--limit", "3")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Satellites found.")
	assert.Contains(t, stdout, "Written waypoint 2\n")
	assert.NotContains(t, stdout, "Written waypoint 3\n")

	matches, err := filepath.Glob(filepath.Join(dir, "GPS_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, export.CSVHeader, rows[0])
	for _, row := range rows[1:] {
		assert.NotEmpty(t, row[1], "recorded rows come from a locked receiver")
	}

	st, err := export.OpenSQLite(dbPath, "check")
	require.NoError(t, err)
	defer st.Close()
	sessions, err := st.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	wps, err := st.Waypoints(context.Background(), sessions[0])
	require.NoError(t, err)
	assert.Len(t, wps, 3)

	recs, err := replay.ReadFile(rawPath)
	require.NoError(t, err)
	assert.Greater(t, len(recs), 10)
}

func TestAddLocalTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GPS_2023-05-01_100000.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"timestamp_utc,latitude_deg,longitude_deg,altitude_m\n2023-05-01 10:00:00,48.1,11.5,545.4\n"), 0o644))

	code, stdout, stderr := runCmd(t, "add-local-time", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Done.\n", stdout)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "2023-05-01 12:00:00")

	code, _, stderr = runCmd(t, "add-local-time", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, _, stderr = runCmd(t, "add-local-time", path+".missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "file not found")
}

func TestServe_StatusFollowsSimulator(t *testing.T) {
	cfg, err := loadConfig(options{configPath: writeConfig(t, simConfig+"web:\n  listen: 127.0.0.1:0\n")})
	require.NoError(t, err)
	a := newApp(cfg, options{}, io.Discard, io.Discard)
	addrs := make(chan net.Addr, 1)
	a.onWebListen = func(addr net.Addr) { addrs <- addr }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmdServe(ctx, a, nil) }()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("serve returned before listening: %v", err)
	}

	var snap web.StatusSnapshot
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr.String() + "/api/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return false
		}
		return snap.GPS.Waypoints >= 3 && snap.Position != nil
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, "sim", snap.Source)
	assert.NotEmpty(t, snap.Session)
	assert.True(t, snap.GPS.Running)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
