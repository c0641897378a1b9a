package sensorlink

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
)

// Conn is the byte stream to the sensor device. Closing it must unblock a
// pending Read.
type Conn interface {
	io.ReadWriter
	io.Closer
}

// Dialer opens a fresh connection to the device.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	// String names the endpoint for logs.
	String() string
}

// TCPDialer connects over TCP.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d TCPDialer) String() string { return "tcp://" + d.Addr }

// SerialDialer opens a serial port carrying the same text protocol.
type SerialDialer struct {
	Path    string
	Options PortOptions

	// open is replaced in tests.
	open func(path string, mode *serial.Mode) (serial.Port, error)
}

func (d SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode, err := d.Options.SerialMode()
	if err != nil {
		return nil, err
	}
	open := d.open
	if open == nil {
		open = serial.Open
	}
	port, err := open(d.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Path, err)
	}
	return port, nil
}

func (d SerialDialer) String() string { return "serial://" + d.Path }
