package web

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWaypointHub_ReplaysLastAndDropsWhenFull(t *testing.T) {
	h := NewWaypointHub()
	_ = h.WriteWaypoint(context.Background(), *validWaypoint())

	id, ch := h.Subscribe(1)
	ev := <-ch
	if ev.Type != "waypoint" || ev.Seq != 1 || ev.Position == nil {
		t.Fatalf("replayed event=%+v", ev)
	}

	h.Publish(Event{Type: "waypoint"})
	h.Publish(Event{Type: "waypoint"})
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
	if got := (<-ch).Seq; got != 2 {
		t.Fatalf("seq=%d", got)
	}

	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", h.Subscribers())
	}
}

func TestStreamHandler_DeliversEvents(t *testing.T) {
	h := NewWaypointHub()
	ts := httptest.NewServer(h.StreamHandler(quietLogger()))
	defer ts.Close()

	h.Publish(Event{Type: "waypoint"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if first.Seq != 1 {
		t.Fatalf("first=%+v", first)
	}

	// The replay proves the subscription exists, so this one is not missed.
	_ = h.WriteWaypoint(context.Background(), *validWaypoint())
	var second Event
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if second.Seq != 2 || second.Waypoint.LatitudeDeg == nil || *second.Waypoint.LatitudeDeg != 48.1173 {
		t.Fatalf("second=%+v", second)
	}
}
