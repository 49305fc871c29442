package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func startFakeGPSD(t *testing.T, lines ...string) (addr string, watch <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprint(conn, `{"class":"VERSION","release":"3.25","proto_major":3}`+"\n")
		cmd, _ := bufio.NewReader(conn).ReadString('\n')
		got <- cmd
		fmt.Fprint(conn, `{"class":"DEVICES","devices":[{"class":"DEVICE","path":"/dev/ttyACM0","driver":"u-blox"}]}`+"\n")
		fmt.Fprint(conn, `{"class":"WATCH","enable":true,"nmea":true}`+"\n")
		for _, l := range lines {
			fmt.Fprint(conn, l+"\r\n")
		}
		// Hold the connection open until the client goes away.
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	}()
	return ln.Addr().String(), got
}

func TestGPSDSource_RelaysNMEA(t *testing.T) {
	addr, watch := startFakeGPSD(t, lineRMC, lineGLL)
	src := NewGPSDSource(addr, 2*time.Second, quietLogger())
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, want := range []string{lineRMC, lineGLL} {
		line, err := src.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if string(line) != want {
			t.Fatalf("line=%q want %q", line, want)
		}
	}

	cmd := <-watch
	if !strings.Contains(cmd, `"nmea":true`) {
		t.Fatalf("watch command=%q", cmd)
	}
	if src.Device() != "/dev/ttyACM0" {
		t.Fatalf("device=%q", src.Device())
	}
}

func TestGPSDSource_ReadTimeoutIsNoData(t *testing.T) {
	addr, _ := startFakeGPSD(t)
	src := NewGPSDSource(addr, 50*time.Millisecond, quietLogger())
	defer src.Close()

	_, err := src.ReadLine(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err=%v want ErrNoData", err)
	}
}

func TestGPSDSource_DialFailureBacksOff(t *testing.T) {
	src := NewGPSDSource("", time.Second, quietLogger())
	if src.Addr() != gpsdDefaultAddr {
		t.Fatalf("addr=%q", src.Addr())
	}
	dials := 0
	src.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}

	start := time.Now()
	_, err := src.ReadLine(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err=%v want ErrNoData", err)
	}
	if time.Since(start) < gpsdMinBackoff {
		t.Fatalf("returned before backoff elapsed")
	}
	if src.backoff != 2*gpsdMinBackoff {
		t.Fatalf("backoff=%v want %v", src.backoff, 2*gpsdMinBackoff)
	}
	if dials != 1 {
		t.Fatalf("dials=%d", dials)
	}
}

func TestGPSDSource_DialCancelled(t *testing.T) {
	src := NewGPSDSource("127.0.0.1:1", time.Second, quietLogger())
	src.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.ReadLine(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestGPSDSource_ClosedAfterClose(t *testing.T) {
	src := NewGPSDSource("127.0.0.1:1", time.Second, quietLogger())
	_ = src.Close()
	if _, err := src.ReadLine(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
}

func TestGPSDSource_UnterminatedRunIsBounded(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte(strings.Repeat("x", maxLineLen+100)))
		_, _ = io.Copy(io.Discard, conn)
	}()

	src := NewGPSDSource(ln.Addr().String(), 50*time.Millisecond, quietLogger())
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var line []byte
	for line == nil {
		line, err = src.ReadLine(ctx)
		if err != nil && !errors.Is(err, ErrNoData) {
			t.Fatalf("ReadLine: %v", err)
		}
	}
	if len(line) != maxLineLen {
		t.Fatalf("len(line)=%d want %d", len(line), maxLineLen)
	}
	if len(src.partial) >= maxLineLen {
		t.Fatalf("partial kept %d bytes", len(src.partial))
	}
}
