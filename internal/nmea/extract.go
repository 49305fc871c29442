package nmea

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownValidity is reported when an RMC status is neither A nor V.
var ErrUnknownValidity = errors.New("nmea: unknown validity code")

// FieldError describes one field that could not be parsed. Extraction of the
// remaining fields continues.
type FieldError struct {
	ID    string
	Field string
	Index int
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("nmea: %s field %d (%s) %q: %v", e.ID, e.Index, e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Values holds whatever one sentence reported. Nil means "not reported".
type Values struct {
	Valid      *bool
	Timestamp  *time.Time
	LatDeg     *float64
	LonDeg     *float64
	HeadingDeg *float64
	SpeedKmh   *float64
	AltitudeM  *float64
	Satellites *int
}

// Extract dispatches on the sentence kind. Unrecognized sentences yield no values.
func Extract(s Sentence) (Values, error) {
	switch s.Kind {
	case KindRMC:
		return ExtractRMC(s)
	case KindVTG:
		return ExtractVTG(s)
	case KindGGA:
		return ExtractGGA(s)
	case KindGLL:
		return ExtractGLL(s)
	default:
		return Values{}, nil
	}
}

const (
	rmcTime     = 1
	rmcStatus   = 2
	rmcLat      = 3
	rmcLatHemi  = 4
	rmcLon      = 5
	rmcLonHemi  = 6
	rmcCourse   = 8
	rmcDate     = 9
	vtgSpeedKmh = 7
	ggaSats     = 7
	ggaAltitude = 9
)

// RMC: Recommended Minimum Specific GNSS Data
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots), unused
//	8: course over ground (deg)
//	9: date (ddmmyy)
//
// ExtractRMC reports validity, timestamp, heading and, for valid fixes only,
// the signed position.
func ExtractRMC(s Sentence) (Values, error) {
	var out Values
	var errs []error

	valid := false
	switch status := strings.TrimSpace(s.Field(rmcStatus)); status {
	case "A":
		valid = true
	case "V":
	default:
		errs = append(errs, &FieldError{ID: s.ID, Field: "status", Index: rmcStatus, Value: status, Err: ErrUnknownValidity})
	}
	out.Valid = &valid

	if date, tod := s.Field(rmcDate), s.Field(rmcTime); date != "" || tod != "" {
		ts, err := ComposeTimestamp(date, tod)
		if err != nil {
			errs = append(errs, &FieldError{ID: s.ID, Field: "timestamp", Index: rmcDate, Value: date + " " + tod, Err: err})
		} else {
			out.Timestamp = &ts
		}
	}

	if valid {
		lat, err := ParseLatitude(s.Field(rmcLat), s.Field(rmcLatHemi))
		if err != nil {
			errs = append(errs, &FieldError{ID: s.ID, Field: "latitude", Index: rmcLat, Value: s.Field(rmcLat), Err: err})
		}
		lon, err2 := ParseLongitude(s.Field(rmcLon), s.Field(rmcLonHemi))
		if err2 != nil {
			errs = append(errs, &FieldError{ID: s.ID, Field: "longitude", Index: rmcLon, Value: s.Field(rmcLon), Err: err2})
		}
		// Position is reported as a pair or not at all.
		if err == nil && err2 == nil {
			out.LatDeg = &lat
			out.LonDeg = &lon
		}
	}

	if v, err := optFloat(s, "course", rmcCourse); err != nil {
		errs = append(errs, err)
	} else {
		out.HeadingDeg = v
	}

	return out, errors.Join(errs...)
}

// ExtractVTG reports speed over ground in km/h. The value is the field right
// before the "K" unit marker; without a marker the standard position 7 is used.
func ExtractVTG(s Sentence) (Values, error) {
	idx := vtgSpeedKmh
	for i := 2; i < len(s.Fields); i++ {
		if strings.EqualFold(strings.TrimSpace(s.Fields[i]), "K") && strings.TrimSpace(s.Fields[i-1]) != "" {
			idx = i - 1
			break
		}
	}
	v, err := optFloat(s, "speed_kmh", idx)
	if err != nil {
		return Values{}, err
	}
	return Values{SpeedKmh: v}, nil
}

// GGA: Global Positioning System Fix Data
//
//	6: fix quality
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//	10: units (M)
func ExtractGGA(s Sentence) (Values, error) {
	var out Values
	var errs []error

	if raw := strings.TrimSpace(s.Field(ggaSats)); raw != "" {
		n, err := parseCount(raw)
		if err != nil {
			errs = append(errs, &FieldError{ID: s.ID, Field: "satellites", Index: ggaSats, Value: raw, Err: err})
		} else {
			out.Satellites = &n
		}
	}
	if v, err := optFloat(s, "altitude_m", ggaAltitude); err != nil {
		errs = append(errs, err)
	} else {
		out.AltitudeM = v
	}
	return out, errors.Join(errs...)
}

// ExtractGLL reports nothing; GLL only marks the end of a fix cycle.
func ExtractGLL(Sentence) (Values, error) {
	return Values{}, nil
}

// optFloat parses field i; empty fields are absent, not errors.
func optFloat(s Sentence, name string, i int) (*float64, error) {
	raw := strings.TrimSpace(s.Field(i))
	if raw == "" {
		return nil, nil
	}
	v, err := parseDecimal(raw)
	if err != nil {
		return nil, &FieldError{ID: s.ID, Field: name, Index: i, Value: raw, Err: err}
	}
	return &v, nil
}
