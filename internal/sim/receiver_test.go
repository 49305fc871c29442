package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnsslog/internal/gps"
)

func TestReceiver_CycleParsesWithChecksums(t *testing.T) {
	r := &Receiver{}
	now := time.Date(2024, 6, 1, 8, 30, 15, 500_000_000, time.UTC)
	st := State{LatDeg: 48.1173, LonDeg: -11.516667, AltM: 545.4, SpeedKmh: 41.5, CourseDeg: 84.4, Fix: true, Satellites: 9}

	lines := r.Cycle(now, st)
	require.Len(t, lines, 5)

	var types []string
	for _, l := range lines {
		s, err := gonmea.Parse(l)
		require.NoError(t, err, l)
		types = append(types, s.DataType())
	}
	assert.Equal(t, []string{"RMC", "VTG", "GGA", "GSA", "GLL"}, types)

	s, err := gonmea.Parse(lines[0])
	require.NoError(t, err)
	rmc := s.(gonmea.RMC)
	assert.Equal(t, gonmea.ValidRMC, rmc.Validity)
	assert.InDelta(t, 48.1173, rmc.Latitude, 1e-5)
	assert.InDelta(t, -11.516667, rmc.Longitude, 1e-5)
	assert.InDelta(t, 84.4, rmc.Course, 1e-9)
	assert.Equal(t, 1, rmc.Date.DD)
	assert.Equal(t, 6, rmc.Date.MM)
	assert.Equal(t, 24, rmc.Date.YY)

	s, err = gonmea.Parse(lines[2])
	require.NoError(t, err)
	gga := s.(gonmea.GGA)
	assert.Equal(t, int64(9), gga.NumSatellites)
	assert.InDelta(t, 545.4, gga.Altitude, 1e-9)
}

func TestReceiver_VoidUntilLocked(t *testing.T) {
	r := &Receiver{LockAfter: 2, Talker: "GP"}
	st := State{LatDeg: 1, LonDeg: 2, Fix: true, Satellites: 8}
	now := time.Date(2024, 6, 1, 8, 30, 15, 0, time.UTC)

	for i := 0; i < 2; i++ {
		lines := r.Cycle(now, st)
		assert.True(t, strings.HasPrefix(lines[0], "$GPRMC,083015.00,V,,,,"), lines[0])
		assert.True(t, strings.HasPrefix(lines[2], "$GPGGA,083015.00,,,,,0,"), lines[2])
	}
	lines := r.Cycle(now, st)
	assert.True(t, strings.HasPrefix(lines[0], "$GPRMC,083015.00,A,0100.0000,N,00200.0000,E,"), lines[0])
}

func TestFormatDegMin(t *testing.T) {
	v, h := formatDegMin(-33.5, 2, "N", "S")
	assert.Equal(t, "3330.0000", v)
	assert.Equal(t, "S", h)

	v, h = formatDegMin(7.999999999, 3, "E", "W")
	assert.Equal(t, "00800.0000", v)
	assert.Equal(t, "E", h)
}

func TestSource_FramesIntoWaypoints(t *testing.T) {
	circuit := Circuit{CenterLatDeg: 48.1, CenterLonDeg: 11.5}
	src := NewSource(circuit, 2)
	src.Interval = time.Millisecond

	f := gps.NewFramer(src, gps.FramerOptions{})
	a := gps.NewAssembler(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	progress := &ticks{}
	wp, err := gps.Acquire(ctx, f, a, progress)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.n, "two void cycles before lock")
	require.True(t, wp.HasPosition())
	assert.InDelta(t, 48.1, *wp.LatitudeDeg, 0.01)
	assert.InDelta(t, 11.5, *wp.LongitudeDeg, 0.01)
	require.NotNil(t, wp.SatelliteCount)
	assert.Equal(t, 8, *wp.SatelliteCount)
	assert.Len(t, wp.RawPackage, 5)
}

type ticks struct{ n int }

func (t *ticks) Tick() { t.n++ }
func (t *ticks) Done() {}

func TestSource_Cancelled(t *testing.T) {
	src := NewSource(Circuit{}, 0)
	src.Interval = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// First cycle is immediate; drain it.
	for i := 0; i < 5; i++ {
		_, err := src.ReadLine(ctx)
		require.NoError(t, err)
	}
	_, err := src.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
