// Package coretest provides in-memory core.Connection fakes for tests.
package coretest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/voicehub/internal/core"
)

// Conn records every frame it accepts. Fail makes TrySend return the given error.
type Conn struct {
	Name string

	mu     sync.Mutex
	frames []core.Frame
	fail   error
	closed bool
	notify chan struct{}
}

func NewConn(name string) *Conn {
	return &Conn{Name: name, notify: make(chan struct{}, 1)}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

// Decoded unmarshals every recorded frame into a generic map.
func (c *Conn) Decoded() []map[string]any {
	frames := c.Frames()
	out := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// WaitFor polls until pred holds for the recorded frames or the timeout elapses.
func (c *Conn) WaitFor(timeout time.Duration, pred func([]map[string]any) bool) bool {
	deadline := time.After(timeout)
	for {
		if pred(c.Decoded()) {
			return true
		}
		select {
		case <-c.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return pred(c.Decoded())
		}
	}
}
