package transport

import (
	"encoding/json"
	"fmt"
	"sync"
)

// chanConn implements Conn over a pair of channels for in-process testing:
// messages are JSON-round-tripped through the channels to match real
// websocket behavior instead of just passing Go values by reference.
type chanConn struct {
	in   chan json.RawMessage
	out  chan json.RawMessage
	done chan struct{}
	once sync.Once
}

func (c *chanConn) ReadJSON(v interface{}) error {
	select {
	case raw, ok := <-c.in:
		if !ok {
			return fmt.Errorf("connection closed")
		}
		return json.Unmarshal(raw, v)
	case <-c.done:
		return fmt.Errorf("connection closed")
	}
}

func (c *chanConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- raw:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// connPair creates two connected Conn implementations for testing.
func connPair() (Conn, Conn) {
	ab := make(chan json.RawMessage, 32)
	ba := make(chan json.RawMessage, 32)
	return &chanConn{in: ba, out: ab, done: make(chan struct{})},
		&chanConn{in: ab, out: ba, done: make(chan struct{})}
}

var _ Conn = (*chanConn)(nil)
