package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Degree digit counts of the NMEA ddmm.mmmm / dddmm.mmmm coordinate fields.
const (
	LatDegreeDigits = 2
	LonDegreeDigits = 3
)

// TimestampPattern is the strftime rendering used for exported timestamps.
const TimestampPattern = "%Y-%m-%d %H:%M:%S"

// timestampLayout is TimestampPattern in Go reference-time form, for parsing.
const timestampLayout = "2006-01-02 15:04:05"

// DefaultLocalOffset is the fixed UTC offset applied by ToLocal (CEST).
const DefaultLocalOffset = 2 * time.Hour

var (
	errHemisphere = errors.New("invalid hemisphere")
	errNotNumeric = errors.New("not a decimal number")
)

// isDecimal reports whether v is an NMEA number: an optional sign, digits and
// an optional fraction. strconv also accepts NaN, Inf and hex floats; NMEA
// never sends those.
func isDecimal(v string) bool {
	if v != "" && (v[0] == '+' || v[0] == '-') {
		v = v[1:]
	}
	digits, dot := 0, false
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// parseDecimal is strconv.ParseFloat restricted to the NMEA number grammar.
func parseDecimal(v string) (float64, error) {
	if !isDecimal(v) {
		return 0, fmt.Errorf("%w: %q", errNotNumeric, v)
	}
	return strconv.ParseFloat(v, 64)
}

// parseCount parses an unsigned integer field such as a satellite count.
func parseCount(v string) (int, error) {
	if !isDigits(v) {
		return 0, fmt.Errorf("%w: %q", errNotNumeric, v)
	}
	return strconv.Atoi(v)
}

// DegMinToDecimal converts a ddmm.mmmm (degDigits=2) or dddmm.mmmm (degDigits=3)
// field to unsigned decimal degrees.
func DegMinToDecimal(v string, degDigits int) (float64, error) {
	v = strings.TrimSpace(v)
	if len(v) <= degDigits {
		return 0, fmt.Errorf("coordinate %q too short", v)
	}
	if !isDigits(v[:degDigits]) {
		return 0, fmt.Errorf("coordinate %q: bad degrees", v)
	}
	deg, err := strconv.Atoi(v[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: bad degrees", v)
	}
	minField := v[degDigits:]
	if minField[0] == '+' || minField[0] == '-' {
		return 0, fmt.Errorf("coordinate %q: signed minutes", v)
	}
	mins, err := parseDecimal(minField)
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: bad minutes: %w", v, err)
	}
	if mins < 0 || mins >= 60 {
		return 0, fmt.Errorf("coordinate %q: minutes out of range", v)
	}
	return float64(deg) + mins/60.0, nil
}

// ApplyHemisphere signs an unsigned decimal coordinate: S and W are negative.
func ApplyHemisphere(dec float64, hemi string) (float64, error) {
	switch strings.ToUpper(strings.TrimSpace(hemi)) {
	case "N", "E":
		return dec, nil
	case "S", "W":
		return -dec, nil
	default:
		return 0, fmt.Errorf("%w %q", errHemisphere, hemi)
	}
}

// ParseLatitude parses a ddmm.mmmm latitude with its N/S indicator.
func ParseLatitude(v, hemi string) (float64, error) {
	h := strings.ToUpper(strings.TrimSpace(hemi))
	if h != "N" && h != "S" {
		return 0, fmt.Errorf("latitude %w %q", errHemisphere, hemi)
	}
	dec, err := DegMinToDecimal(v, LatDegreeDigits)
	if err != nil {
		return 0, err
	}
	if dec > 90 {
		return 0, fmt.Errorf("latitude %q out of range", v)
	}
	return ApplyHemisphere(dec, h)
}

// ParseLongitude parses a dddmm.mmmm longitude with its E/W indicator.
func ParseLongitude(v, hemi string) (float64, error) {
	h := strings.ToUpper(strings.TrimSpace(hemi))
	if h != "E" && h != "W" {
		return 0, fmt.Errorf("longitude %w %q", errHemisphere, hemi)
	}
	dec, err := DegMinToDecimal(v, LonDegreeDigits)
	if err != nil {
		return 0, err
	}
	if dec > 180 {
		return 0, fmt.Errorf("longitude %q out of range", v)
	}
	return ApplyHemisphere(dec, h)
}

// ComposeTimestamp parses an RMC date (ddmmyy) and time of day (hhmmss[.sss])
// as a UTC instant. Fractional seconds are kept.
func ComposeTimestamp(date, tod string) (time.Time, error) {
	date = strings.TrimSpace(date)
	tod = strings.TrimSpace(tod)
	if len(date) != 6 || len(tod) < 6 {
		return time.Time{}, fmt.Errorf("timestamp %q %q: malformed", date, tod)
	}
	t, err := time.ParseInLocation("020106150405", date+tod, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q %q: %w", date, tod, err)
	}
	return t, nil
}

// FormatTimestamp renders t (in UTC) as "YYYY-MM-DD HH:MM:SS".
func FormatTimestamp(t time.Time) string {
	s, err := strftime.Format(TimestampPattern, t.UTC())
	if err != nil {
		// The pattern is constant; fall back to the equivalent layout.
		return t.UTC().Format(timestampLayout)
	}
	return s
}

// ParseTimestamp parses a "YYYY-MM-DD HH:MM:SS" string as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, strings.TrimSpace(s), time.UTC)
}

// ToLocal shifts a "YYYY-MM-DD HH:MM:SS" UTC timestamp by a fixed offset and
// renders it in the same format. This is a static offset: no time zone or DST rules.
func ToLocal(utc string, offset time.Duration) (string, error) {
	t, err := ParseTimestamp(utc)
	if err != nil {
		return "", fmt.Errorf("to local: %w", err)
	}
	return FormatTimestamp(t.Add(offset)), nil
}
