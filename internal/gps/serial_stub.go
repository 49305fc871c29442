//go:build !linux

package gps

import "fmt"

const defaultDriver = "bugst"

type termiosPort struct{}

func (*termiosPort) Read([]byte) (int, error) { return 0, fmt.Errorf("termios not supported") }
func (*termiosPort) Close() error             { return nil }

func openTermios(SerialConfig) (*termiosPort, error) {
	return nil, fmt.Errorf("termios serial driver not supported on this platform (use driver bugst)")
}
