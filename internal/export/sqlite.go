package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"gnsslog/internal/gps"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS waypoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	timestamp_utc TEXT,
	valid INTEGER,
	latitude_deg DOUBLE,
	longitude_deg DOUBLE,
	altitude_m DOUBLE,
	heading_deg DOUBLE,
	speed_kmh DOUBLE,
	satellite_count INTEGER,
	raw TEXT,
	recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS waypoints_session ON waypoints(session_id);
`

// SQLiteStore keeps every waypoint of a recording session in a SQLite table,
// including the raw sentences it was assembled from.
type SQLiteStore struct {
	db      *sql.DB
	session string
}

// OpenSQLite opens (or creates) the database at path. An empty session gets a
// fresh UUID.
func OpenSQLite(path, session string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the service delivers sequentially anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if session == "" {
		session = uuid.NewString()
	}
	return &SQLiteStore{db: db, session: session}, nil
}

func (s *SQLiteStore) Session() string { return s.session }

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *SQLiteStore) WriteWaypoint(ctx context.Context, wp gps.Waypoint) error {
	var ts, valid, sats any
	if wp.TimestampUTC != nil {
		ts = wp.TimestampUTC.UTC().Format(time.RFC3339Nano)
	}
	if wp.Valid != nil {
		valid = *wp.Valid
	}
	if wp.SatelliteCount != nil {
		sats = *wp.SatelliteCount
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO waypoints
		(session_id, timestamp_utc, valid, latitude_deg, longitude_deg, altitude_m, heading_deg, speed_kmh, satellite_count, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, ts, valid,
		nullFloat(wp.LatitudeDeg), nullFloat(wp.LongitudeDeg), nullFloat(wp.AltitudeM),
		nullFloat(wp.HeadingDeg), nullFloat(wp.SpeedKmh), sats,
		strings.Join(wp.RawPackage.Lines(), "\n"),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert: %w", err)
	}
	return nil
}

// Waypoints returns the waypoints of session in insertion order. The raw
// package is not restored.
func (s *SQLiteStore) Waypoints(ctx context.Context, session string) ([]gps.Waypoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp_utc, valid, latitude_deg, longitude_deg,
		altitude_m, heading_deg, speed_kmh, satellite_count
		FROM waypoints WHERE session_id = ? ORDER BY id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gps.Waypoint
	for rows.Next() {
		var (
			ts                            sql.NullString
			valid                         sql.NullBool
			lat, lon, alt, heading, speed sql.NullFloat64
			sats                          sql.NullInt64
		)
		if err := rows.Scan(&ts, &valid, &lat, &lon, &alt, &heading, &speed, &sats); err != nil {
			return nil, err
		}
		var wp gps.Waypoint
		if ts.Valid {
			t, err := time.Parse(time.RFC3339Nano, ts.String)
			if err != nil {
				return nil, fmt.Errorf("stored timestamp %q: %w", ts.String, err)
			}
			wp.TimestampUTC = &t
		}
		if valid.Valid {
			v := valid.Bool
			wp.Valid = &v
		}
		wp.LatitudeDeg = floatPtr(lat)
		wp.LongitudeDeg = floatPtr(lon)
		wp.AltitudeM = floatPtr(alt)
		wp.HeadingDeg = floatPtr(heading)
		wp.SpeedKmh = floatPtr(speed)
		if sats.Valid {
			n := int(sats.Int64)
			wp.SatelliteCount = &n
		}
		out = append(out, wp)
	}
	return out, rows.Err()
}

// Sessions lists the recorded session ids, oldest first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM waypoints GROUP BY session_id ORDER BY MIN(id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
