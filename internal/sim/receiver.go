// Package sim emulates a GNSS receiver: it renders NMEA fix cycles for a
// simulated trajectory and serves them as a line source.
package sim

import (
	"fmt"
	"math"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
)

const kmhPerKnot = 1.852

// Receiver renders one NMEA cycle per call: RMC, VTG, GGA, GSA, GLL. The
// first LockAfter cycles report no fix, as a receiver does while it is still
// acquiring satellites.
type Receiver struct {
	// Talker defaults to "GN".
	Talker    string
	LockAfter int

	cycles int
}

// Cycle returns the checksummed lines of one fix cycle, without terminators.
func (r *Receiver) Cycle(now time.Time, st State) []string {
	talker := r.Talker
	if talker == "" {
		talker = "GN"
	}
	if r.cycles < r.LockAfter {
		st.Fix = false
		st.Satellites = r.cycles % 4
	}
	r.cycles++

	now = now.UTC()
	tod := fmt.Sprintf("%02d%02d%02d.%02d", now.Hour(), now.Minute(), now.Second(), now.Nanosecond()/1e7)
	date := now.Format("020106")
	lat, ns := formatDegMin(st.LatDeg, 2, "N", "S")
	lon, ew := formatDegMin(st.LonDeg, 3, "E", "W")
	knots := st.SpeedKmh / kmhPerKnot

	var payloads []string
	if st.Fix {
		payloads = []string{
			fmt.Sprintf("%sRMC,%s,A,%s,%s,%s,%s,%.3f,%.2f,%s,,,A", talker, tod, lat, ns, lon, ew, knots, st.CourseDeg, date),
			fmt.Sprintf("%sVTG,%.2f,T,,M,%.3f,N,%.3f,K,A", talker, st.CourseDeg, knots, st.SpeedKmh),
			fmt.Sprintf("%sGGA,%s,%s,%s,%s,%s,1,%02d,0.9,%.1f,M,46.9,M,,", talker, tod, lat, ns, lon, ew, st.Satellites, st.AltM),
			fmt.Sprintf("%sGSA,A,3,%s,1.5,0.9,1.2", talker, satList(st.Satellites)),
			fmt.Sprintf("%sGLL,%s,%s,%s,%s,%s,A,A", talker, lat, ns, lon, ew, tod),
		}
	} else {
		payloads = []string{
			fmt.Sprintf("%sRMC,%s,V,,,,,,,%s,,,N", talker, tod, date),
			fmt.Sprintf("%sVTG,,T,,M,,N,,K,N", talker),
			fmt.Sprintf("%sGGA,%s,,,,,0,%02d,99.99,,,,,,", talker, tod, st.Satellites),
			fmt.Sprintf("%sGSA,A,1,%s,99.99,99.99,99.99", talker, satList(0)),
			fmt.Sprintf("%sGLL,,,,,%s,V,N", talker, tod),
		}
	}

	lines := make([]string, len(payloads))
	for i, p := range payloads {
		lines[i] = "$" + p + "*" + gonmea.Checksum(p)
	}
	return lines
}

// formatDegMin renders decimal degrees as NMEA (d)ddmm.mmmm plus hemisphere.
func formatDegMin(dec float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if dec < 0 {
		hemi = neg
		dec = -dec
	}
	deg := math.Floor(dec)
	mins := (dec - deg) * 60
	// Avoid rendering 60.0000 minutes after rounding.
	if math.Round(mins*1e4)/1e4 >= 60 {
		deg++
		mins = 0
	}
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), mins), hemi
}

// satList renders the 12 PRN slots of GSA.
func satList(n int) string {
	if n > 12 {
		n = 12
	}
	slots := make([]string, 12)
	for i := 0; i < n; i++ {
		slots[i] = fmt.Sprintf("%02d", i+1)
	}
	return strings.Join(slots, ",")
}
