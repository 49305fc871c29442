package sim

import (
	"math"
	"time"
)

// State is what a simulated receiver reports at one instant.
type State struct {
	LatDeg    float64
	LonDeg    float64
	AltM      float64
	SpeedKmh  float64
	CourseDeg float64
	// Fix is false while the receiver has no usable position.
	Fix        bool
	Satellites int
}

// Trajectory yields the simulated state at an elapsed time since start.
type Trajectory interface {
	StateAt(elapsed time.Duration) State
}

// Circuit is a deterministic figure-eight around a center point with a gentle
// altitude swell. Zero fields take defaults.
type Circuit struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	RadiusM      float64
	Period       time.Duration
	Satellites   int
}

const metersPerDegLat = 111_320.0

func (c Circuit) withDefaults() Circuit {
	if c.Period <= 0 {
		c.Period = 120 * time.Second
	}
	if c.RadiusM <= 0 {
		c.RadiusM = 500
	}
	if c.AltM == 0 {
		c.AltM = 520
	}
	if c.Satellites <= 0 {
		c.Satellites = 8
	}
	return c
}

// StateAt always reports a fix; lock acquisition is modeled by Receiver.
func (c Circuit) StateAt(elapsed time.Duration) State {
	c = c.withDefaults()
	if elapsed < 0 {
		elapsed = 0
	}

	radiusDeg := c.RadiusM / metersPerDegLat
	cosLat := math.Cos(c.CenterLatDeg * math.Pi / 180.0)
	phase := float64(elapsed%c.Period) / float64(c.Period)

	// Lissajous figure-eight within the radius:
	//	  x = cos(2πt)       (east)
	//	  y = 0.5*sin(4πt)   (north)
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	st := State{
		LatDeg:     c.CenterLatDeg + radiusDeg*y,
		LonDeg:     c.CenterLonDeg + (radiusDeg*x)/cosLat,
		Fix:        true,
		Satellites: c.Satellites,
	}

	// Velocity in radius units per period.
	vx := -2 * math.Pi * math.Sin(w)
	vy := 2 * math.Pi * math.Cos(2*w)
	st.CourseDeg = math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	mps := math.Hypot(vx, vy) * c.RadiusM / c.Period.Seconds()
	st.SpeedKmh = mps * 3.6

	// Altitude swell on a decoupled period.
	vp := c.Period / 2
	if vp < 30*time.Second {
		vp = 30 * time.Second
	}
	amp := 15.0
	st.AltM = c.AltM + amp*math.Sin(2*math.Pi*float64(elapsed%vp)/float64(vp))
	return st
}
