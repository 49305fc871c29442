package gps

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"gnsslog/internal/geo"
	"gnsslog/internal/nmea"
)

// Package is the sentences of one fix cycle. A framed package is never empty
// and starts with an RMC sentence.
type Package []nmea.Sentence

// Clone returns a deep copy.
func (p Package) Clone() Package {
	if p == nil {
		return nil
	}
	out := make(Package, len(p))
	for i, s := range p {
		out[i] = s.Clone()
	}
	return out
}

// Lines returns the raw text of every member sentence.
func (p Package) Lines() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Raw
	}
	return out
}

// Waypoint is one assembled fix. Nil fields were not reported by the receiver.
type Waypoint struct {
	TimestampUTC   *time.Time `json:"timestamp_utc,omitempty"`
	Valid          *bool      `json:"valid,omitempty"`
	LatitudeDeg    *float64   `json:"latitude_deg,omitempty"`
	LongitudeDeg   *float64   `json:"longitude_deg,omitempty"`
	AltitudeM      *float64   `json:"altitude_m,omitempty"`
	HeadingDeg     *float64   `json:"heading_deg,omitempty"`
	SpeedKmh       *float64   `json:"speed_kmh,omitempty"`
	SatelliteCount *int       `json:"satellite_count,omitempty"`

	RawPackage Package `json:"-"`
}

// IsValid reports whether the receiver declared the fix valid.
func (w Waypoint) IsValid() bool {
	return w.Valid != nil && *w.Valid
}

// HasPosition reports whether both coordinates are present.
func (w Waypoint) HasPosition() bool {
	return w.LatitudeDeg != nil && w.LongitudeDeg != nil
}

func fmtFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

// Show writes a human readable summary of w, one field per line.
func (w Waypoint) Show(out io.Writer) {
	ts := "-"
	if w.TimestampUTC != nil {
		ts = nmea.FormatTimestamp(*w.TimestampUTC)
	}
	valid := "-"
	if w.Valid != nil {
		valid = strconv.FormatBool(*w.Valid)
	}
	sats := "-"
	if w.SatelliteCount != nil {
		sats = strconv.Itoa(*w.SatelliteCount)
	}

	const pad = 17
	fmt.Fprintf(out, "%-*s%s\n", pad, "Timestamp (UTC):", ts)
	fmt.Fprintf(out, "%-*s%s\n", pad, "Valid point:", valid)
	fmt.Fprintf(out, "%-*s%s\n", pad, "Latitude:", fmtFloat(w.LatitudeDeg, 6))
	fmt.Fprintf(out, "%-*s%s\n", pad, "Longitude:", fmtFloat(w.LongitudeDeg, 6))
	fmt.Fprintf(out, "%-*s%s\n", pad, "Altitude (m):", fmtFloat(w.AltitudeM, 1))
	fmt.Fprintf(out, "%-*s%s\n", pad, "Heading (deg):", fmtFloat(w.HeadingDeg, 1))
	fmt.Fprintf(out, "%-*s%s\n", pad, "Speed (km/h):", fmtFloat(w.SpeedKmh, 1))
	fmt.Fprintf(out, "%-*s%s\n", pad, "Satellite #:", sats)
	if w.HasPosition() {
		if u, err := geo.ToUTM(*w.LatitudeDeg, *w.LongitudeDeg); err == nil {
			fmt.Fprintf(out, "%-*s%s\n", pad, "UTM:", u)
		}
	}
}
