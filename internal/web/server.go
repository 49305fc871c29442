package web

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gnsslog/internal/gps"
)

// ScenarioDir is where /api/scenarios looks for simulator scripts.
var ScenarioDir = filepath.FromSlash("configs/scenarios")

type WaypointResponse struct {
	ReceivedUTC string        `json:"received_utc,omitempty"`
	Waypoint    *gps.Waypoint `json:"waypoint"`
	Package     []string      `json:"package,omitempty"`
	Position    *PositionView `json:"position,omitempty"`
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// Handler routes the status API. hub and logs may be nil; their endpoints are
// then not registered.
func Handler(status *Status, hub *WaypointHub, logs *LogBuffer, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/waypoint", func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		g := status.gpsSnapshot()
		if g.LastWaypoint == nil {
			http.Error(w, "no waypoint yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, WaypointResponse{
			ReceivedUTC: g.LastPackageUTC,
			Waypoint:    g.LastWaypoint,
			Package:     g.LastPackage,
			Position:    positionOf(g.LastWaypoint),
		})
	})

	// Simulator scripts, as paths usable for sim.scenario.
	mux.HandleFunc("/api/scenarios", func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		paths := []string{}
		if entries, err := os.ReadDir(ScenarioDir); err == nil {
			for _, e := range entries {
				lower := strings.ToLower(e.Name())
				if e.IsDir() || !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")) {
					continue
				}
				p := filepath.ToSlash(filepath.Join(ScenarioDir, e.Name()))
				if !filepath.IsAbs(p) {
					p = "./" + p
				}
				paths = append(paths, p)
			}
		}
		sort.Strings(paths)
		writeJSON(w, struct {
			Paths []string `json:"paths"`
		}{Paths: paths})
	})

	if hub != nil {
		mux.Handle("/api/stream", hub.StreamHandler(logger))
	}
	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	return mux
}

// Serve runs the status server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, handler)
}

// ServeListener is Serve on an already bound listener, which it closes.
func ServeListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
