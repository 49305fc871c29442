package web

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"gnsslog/internal/gps"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// Event is one message on /api/stream.
type Event struct {
	Type     string        `json:"type"`
	SentUTC  string        `json:"sent_utc"`
	Seq      uint64        `json:"seq"`
	Waypoint gps.Waypoint  `json:"waypoint"`
	Package  []string      `json:"package,omitempty"`
	Position *PositionView `json:"position,omitempty"`
}

// WaypointHub fans waypoints out to stream subscribers. It keeps the most
// recent event so a new subscriber gets an immediate sample. Slow
// subscribers lose events rather than block the pipeline.
type WaypointHub struct {
	mu       sync.RWMutex
	subs     map[int]chan Event
	nextID   int
	last     Event
	haveLast bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

func NewWaypointHub() *WaypointHub {
	return &WaypointHub{subs: make(map[int]chan Event)}
}

func (h *WaypointHub) Subscribe(buffer int) (int, <-chan Event) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.haveLast {
		ch <- h.last
	}
	h.mu.Unlock()
	return id, ch
}

func (h *WaypointHub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers is the number of open subscriptions.
func (h *WaypointHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events not delivered to a full subscriber.
func (h *WaypointHub) Dropped() uint64 { return h.dropped.Load() }

func (h *WaypointHub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.SentUTC == "" {
		ev.SentUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	ev.Seq = h.seq.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	h.last = ev
	h.haveLast = true
}

// WriteWaypoint makes the hub a gps.Sink.
func (h *WaypointHub) WriteWaypoint(_ context.Context, wp gps.Waypoint) error {
	h.Publish(Event{
		Type:     "waypoint",
		Waypoint: wp,
		Package:  wp.RawPackage.Lines(),
		Position: positionOf(&wp),
	})
	return nil
}

var upgrader = websocket.Upgrader{
	// The status UI is served from the same device over a local link.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler upgrades to a websocket and writes every hub event as JSON
// until the client goes away.
func (h *WaypointHub) StreamHandler(logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		defer conn.Close()

		id, events := h.Subscribe(8)
		defer h.Unsubscribe(id)
		logger.Debug("stream subscriber connected", "remote", r.RemoteAddr)

		// Reader: only control frames are expected; it ends on close or error.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(streamPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-gone:
				logger.Debug("stream subscriber left", "remote", r.RemoteAddr)
				return
			case <-r.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					logger.Debug("stream write failed", "remote", r.RemoteAddr, "err", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	})
}
