package collab

import (
	"log"
	"sync"
)

// Conn is the outbound side of a user's websocket connection. Satisfied by
// *websocket.Conn from gofiber/websocket.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// client pairs a connection with a write mutex, since websocket connections
// do not allow concurrent writers.
type client struct {
	conn Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Registry maps connected user IDs to their live connections. It is an
// injectable object owned by the server, not package-global state.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Connect registers the connection for a user. A user reconnecting replaces
// (and closes) their previous connection.
func (r *Registry) Connect(userID string, conn Conn) {
	r.mu.Lock()
	old, existed := r.clients[userID]
	r.clients[userID] = &client{conn: conn}
	r.mu.Unlock()

	if existed {
		_ = old.conn.Close()
	}
	r.logger.Printf("User %s connected", userID)
}

// Disconnect removes a user's connection. Disconnecting a user who never
// connected is a no-op.
func (r *Registry) Disconnect(userID string) {
	r.remove(userID, nil)
}

// DisconnectConn removes the user's registration only while it still points
// at conn. A read loop exiting after its connection was replaced by a
// reconnect must not tear down the replacement. Returns whether the user
// was actually removed.
func (r *Registry) DisconnectConn(userID string, conn Conn) bool {
	return r.remove(userID, conn)
}

func (r *Registry) remove(userID string, conn Conn) bool {
	r.mu.Lock()
	cl, ok := r.clients[userID]
	if ok && conn != nil && cl.conn != conn {
		r.mu.Unlock()
		return false
	}
	if ok {
		delete(r.clients, userID)
	}
	r.mu.Unlock()

	if ok {
		_ = cl.conn.Close()
		r.logger.Printf("User %s disconnected", userID)
	}
	return ok
}

// Deliver sends an event to a single user. Returns false if the user is not
// connected or the write fails; a failed write also drops the connection.
func (r *Registry) Deliver(userID string, evt Event) bool {
	r.mu.RLock()
	cl, ok := r.clients[userID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if err := cl.writeJSON(evt); err != nil {
		r.logger.Printf("Error sending message to %s: %v", userID, err)
		r.remove(userID, cl.conn)
		return false
	}
	return true
}

// Connected reports whether a user currently has a live connection
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
