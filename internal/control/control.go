// Package control sends start, stop and quit commands to the sensor rig
// over the sensor link. Commands are fire-and-forget: there is no
// acknowledgement and a failed write is never retried.
package control

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
)

// Command is a literal token understood by the rig.
type Command string

const (
	Start Command = "start"
	Stop  Command = "stop"
	Quit  Command = "quit"
)

// allowedCommands are the only tokens written to the device.
var allowedCommands = []Command{Start, Stop, Quit}

var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	for _, c := range allowedCommands {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCommand, s)
}

// Sent records one command attempt.
type Sent struct {
	Command Command `json:"command"`
	Err     string  `json:"error,omitempty"`
}

// Channel writes command tokens to w, which is normally the sensor link.
type Channel struct {
	w io.Writer

	mu   sync.Mutex
	last *Sent
}

// New returns a Channel writing to w.
func New(w io.Writer) *Channel {
	return &Channel{w: w}
}

func (c *Channel) SendStart() error { return c.Send(Start) }
func (c *Channel) SendStop() error  { return c.Send(Stop) }
func (c *Channel) SendQuit() error  { return c.Send(Quit) }

// Send writes the raw token with no terminator. A failure is logged and
// returned for the caller to report; it is never retried.
func (c *Channel) Send(cmd Command) error {
	if _, err := ParseCommand(string(cmd)); err != nil {
		return err
	}
	_, err := c.w.Write([]byte(cmd))

	s := &Sent{Command: cmd}
	if err != nil {
		s.Err = err.Error()
		monitoring.Logf("control: send %q failed: %v", cmd, err)
	}
	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
	return err
}

// Last returns the most recent command attempt, or nil.
func (c *Channel) Last() *Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	s := *c.last
	return &s
}
