package collab

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records everything written to it and can be told to fail
type fakeConn struct {
	mu         sync.Mutex
	events     []Event
	closed     bool
	failWrites bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("broken pipe")
	}
	if evt, ok := v.(Event); ok {
		c.events = append(c.events, evt)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// EventsOfType filters the recorded events by type
func (c *fakeConn) EventsOfType(t EventType) []Event {
	var out []Event
	for _, evt := range c.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRegistryConnectAndDeliver(t *testing.T) {
	r := NewRegistry(testLogger())
	conn := &fakeConn{}

	r.Connect("alice", conn)
	assert.True(t, r.Connected("alice"))
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Deliver("alice", Event{Type: EventChatMessage, Content: "hi"}))
	require.Len(t, conn.Events(), 1)
	assert.Equal(t, "hi", conn.Events()[0].Content)
}

func TestRegistryDeliverToUnknownUser(t *testing.T) {
	r := NewRegistry(testLogger())
	assert.False(t, r.Deliver("nobody", Event{Type: EventChatMessage}))
}

func TestRegistryReconnectReplacesConnection(t *testing.T) {
	r := NewRegistry(testLogger())
	first := &fakeConn{}
	second := &fakeConn{}

	r.Connect("alice", first)
	r.Connect("alice", second)

	assert.True(t, first.Closed(), "stale connection is closed on reconnect")
	assert.Equal(t, 1, r.Count())

	r.Deliver("alice", Event{Type: EventChatMessage})
	assert.Empty(t, first.Events())
	assert.Len(t, second.Events(), 1)
}

func TestRegistryStaleDisconnectKeepsReplacement(t *testing.T) {
	r := NewRegistry(testLogger())
	first := &fakeConn{}
	second := &fakeConn{}

	r.Connect("alice", first)
	r.Connect("alice", second)

	// The first connection's read loop exits after being replaced; its
	// teardown must not touch the replacement.
	assert.False(t, r.DisconnectConn("alice", first))
	assert.True(t, r.Connected("alice"))
	assert.False(t, second.Closed())

	assert.True(t, r.DisconnectConn("alice", second))
	assert.False(t, r.Connected("alice"))
	assert.True(t, second.Closed())
}

func TestRegistryDisconnectIsIdempotent(t *testing.T) {
	r := NewRegistry(testLogger())
	conn := &fakeConn{}

	r.Connect("alice", conn)
	r.Disconnect("alice")
	r.Disconnect("alice")
	r.Disconnect("never-connected")

	assert.True(t, conn.Closed())
	assert.False(t, r.Connected("alice"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistryFailedWriteDropsConnection(t *testing.T) {
	r := NewRegistry(testLogger())
	conn := &fakeConn{failWrites: true}

	r.Connect("alice", conn)
	assert.False(t, r.Deliver("alice", Event{Type: EventChatMessage}))
	assert.False(t, r.Connected("alice"), "a dead connection is evicted")
}
