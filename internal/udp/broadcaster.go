// Package udp sends each waypoint as one JSON datagram.
package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"gnsslog/internal/gps"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Broadcaster struct {
	dest string

	mu   sync.Mutex
	conn udpConn
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		// DialUDP selects a suitable local address automatically.
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

// Dest is the configured destination address.
func (b *Broadcaster) Dest() string { return b.dest }

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("udp broadcaster is closed")
	}
	_, err := b.conn.Write(payload)
	return err
}

// Datagram is the wire form of one waypoint.
type Datagram struct {
	Type     string       `json:"type"`
	Session  string       `json:"session,omitempty"`
	Waypoint gps.Waypoint `json:"waypoint"`
}

// WaypointSink adapts a Broadcaster to gps.Sink.
type WaypointSink struct {
	B       *Broadcaster
	Session string
}

func (s WaypointSink) WriteWaypoint(_ context.Context, wp gps.Waypoint) error {
	payload, err := json.Marshal(Datagram{Type: "waypoint", Session: s.Session, Waypoint: wp})
	if err != nil {
		return fmt.Errorf("udp encode: %w", err)
	}
	if err := s.B.Send(payload); err != nil {
		return fmt.Errorf("udp send %s: %w", s.B.dest, err)
	}
	return nil
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
