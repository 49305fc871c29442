// Package geo holds the small amount of geodesy the logger needs for
// presentation: great-circle distance between fixes and UTM/MGRS grid references.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

// EarthRadiusM is the IUGG mean earth radius.
const EarthRadiusM = 6371008.8

// DistanceMeters returns the great-circle distance between two positions in
// decimal degrees.
func DistanceMeters(lat0, lon0, lat1, lon1 float64) float64 {
	p0 := s2.LatLngFromDegrees(lat0, lon0)
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	return p0.Distance(p1).Radians() * EarthRadiusM
}

func latLng(lat, lon float64) s2.LatLng {
	return s2.LatLng{
		Lat: s1.Angle(lat * math.Pi / 180),
		Lng: s1.Angle(lon * math.Pi / 180),
	}
}

// UTM is a Universal Transverse Mercator grid reference.
type UTM struct {
	Zone       int
	Hemisphere rune // 'N' or 'S'
	Easting    float64
	Northing   float64
}

func (u UTM) String() string {
	return fmt.Sprintf("%d%c %.0fE %.0fN", u.Zone, u.Hemisphere, u.Easting, u.Northing)
}

// ToUTM converts decimal degrees to UTM. Latitudes outside the UTM band
// (beyond 84N / 80S) are rejected by the converter.
func ToUTM(lat, lon float64) (UTM, error) {
	c, err := coordconv.DefaultUTMConverter.ConvertFromGeodetic(latLng(lat, lon), 0)
	if err != nil {
		return UTM{}, fmt.Errorf("utm lat=%f lon=%f: %w", lat, lon, err)
	}
	out := UTM{Zone: c.Zone, Easting: c.Easting, Northing: c.Northing}
	switch c.Hemisphere {
	case coordconv.HemisphereNorth:
		out.Hemisphere = 'N'
	case coordconv.HemisphereSouth:
		out.Hemisphere = 'S'
	default:
		out.Hemisphere = '?'
	}
	return out, nil
}

// ToMGRS renders a military grid reference at the given precision (1 to 5 digits).
func ToMGRS(lat, lon float64, precision int) (string, error) {
	m, err := coordconv.DefaultMGRSConverter.ConvertFromGeodetic(latLng(lat, lon), precision)
	if err != nil {
		return "", fmt.Errorf("mgrs lat=%f lon=%f: %w", lat, lon, err)
	}
	return fmt.Sprint(m), nil
}
