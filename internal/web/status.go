package web

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"gnsslog/internal/geo"
	"gnsslog/internal/gps"
)

// GPSSource is anything that can report the pipeline snapshot, normally a
// *gps.Service.
type GPSSource interface {
	Snapshot() gps.Snapshot
}

type gpsHolder struct{ src GPSSource }

type Status struct {
	startUnixNano int64
	source        atomic.Value // string
	session       atomic.Value // string
	recordDir     atomic.Value // string
	recording     atomic.Value // string
	gps           atomic.Value // gpsHolder
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.session.Store("")
	s.recordDir.Store("")
	s.recording.Store("")
	s.gps.Store(gpsHolder{})
	return s
}

// SetStatic records values fixed for the process lifetime. Empty arguments
// leave the previous value.
func (s *Status) SetStatic(source, session, recordDir string) {
	if source != "" {
		s.source.Store(source)
	}
	if session != "" {
		s.session.Store(session)
	}
	if recordDir != "" {
		s.recordDir.Store(recordDir)
	}
}

// SetRecording names the CSV file currently being written.
func (s *Status) SetRecording(path string) { s.recording.Store(path) }

// AttachGPS makes src the provider for the gps part of the snapshot.
func (s *Status) AttachGPS(src GPSSource) { s.gps.Store(gpsHolder{src: src}) }

func (s *Status) gpsSnapshot() gps.Snapshot {
	h := s.gps.Load().(gpsHolder)
	if h.src == nil {
		return gps.Snapshot{}
	}
	return h.src.Snapshot()
}

// PositionView is the last valid position in the notations a field user
// reads off a map.
type PositionView struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	UTM    string  `json:"utm,omitempty"`
	MGRS   string  `json:"mgrs,omitempty"`
}

// positionOf returns nil unless wp is a valid fix with a position.
func positionOf(wp *gps.Waypoint) *PositionView {
	if wp == nil || !wp.IsValid() || !wp.HasPosition() {
		return nil
	}
	p := &PositionView{LatDeg: *wp.LatitudeDeg, LonDeg: *wp.LongitudeDeg}
	if u, err := geo.ToUTM(p.LatDeg, p.LonDeg); err == nil {
		p.UTM = u.String()
	}
	if m, err := geo.ToMGRS(p.LatDeg, p.LonDeg, 5); err == nil {
		p.MGRS = m
	}
	return p
}

type StatusSnapshot struct {
	Service   string           `json:"service"`
	Version   string           `json:"version,omitempty"`
	Commit    string           `json:"commit,omitempty"`
	NowUTC    string           `json:"now_utc"`
	UptimeSec int64            `json:"uptime_sec"`
	Source    string           `json:"source"`
	Session   string           `json:"session,omitempty"`
	Recording string           `json:"recording,omitempty"`
	GPS       gps.Snapshot     `json:"gps"`
	Position  *PositionView    `json:"position,omitempty"`
	Disk      *DiskSnapshot    `json:"disk,omitempty"`
	Network   *NetworkSnapshot `json:"network,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	g := s.gpsSnapshot()

	snap := StatusSnapshot{
		Service:   "gnsslog",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Source:    s.source.Load().(string),
		Session:   s.session.Load().(string),
		Recording: s.recording.Load().(string),
		GPS:       g,
		Position:  positionOf(g.LastWaypoint),
		Network:   snapshotNetwork(),
	}
	if dir := s.recordDir.Load().(string); dir != "" {
		snap.Disk = snapshotDisk(dir)
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		snap.Version = bi.Main.Version
		for _, kv := range bi.Settings {
			if kv.Key == "vcs.revision" {
				snap.Commit = kv.Value
			}
		}
	}
	return snap
}
