package gps

import (
	"errors"

	"github.com/charmbracelet/log"

	"gnsslog/internal/nmea"
)

// Assembler merges the sentences of a package into one waypoint.
type Assembler struct {
	log *log.Logger
}

// NewAssembler returns an assembler logging extraction problems to logger
// (log.Default when nil).
func NewAssembler(logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{log: logger}
}

// Assemble never fails: fields that cannot be extracted stay absent. Later
// sentences overwrite earlier ones. A void fix carries no position.
func (a *Assembler) Assemble(p Package) Waypoint {
	wp := Waypoint{RawPackage: p.Clone()}
	for _, s := range p {
		v, err := nmea.Extract(s)
		if err != nil {
			if errors.Is(err, nmea.ErrUnknownValidity) {
				a.log.Warn("unknown fix validity, treating as invalid", "sentence", s.Raw, "err", err)
			} else {
				a.log.Debug("field extraction failed", "sentence", s.Raw, "err", err)
			}
		}
		merge(&wp, v)
	}
	if wp.Valid != nil && !*wp.Valid {
		wp.LatitudeDeg = nil
		wp.LongitudeDeg = nil
	}
	return wp
}

func merge(wp *Waypoint, v nmea.Values) {
	if v.Valid != nil {
		wp.Valid = v.Valid
	}
	if v.Timestamp != nil {
		wp.TimestampUTC = v.Timestamp
	}
	if v.LatDeg != nil {
		wp.LatitudeDeg = v.LatDeg
	}
	if v.LonDeg != nil {
		wp.LongitudeDeg = v.LonDeg
	}
	if v.HeadingDeg != nil {
		wp.HeadingDeg = v.HeadingDeg
	}
	if v.SpeedKmh != nil {
		wp.SpeedKmh = v.SpeedKmh
	}
	if v.AltitudeM != nil {
		wp.AltitudeM = v.AltitudeM
	}
	if v.Satellites != nil {
		wp.SatelliteCount = v.Satellites
	}
}
