package gateway

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/c360/fastbot/errors"
)

// Conn is one live bot connection. Writes are serialized: gorilla permits
// only one concurrent writer per connection.
type Conn struct {
	selfID int64
	ws     *websocket.Conn

	writeMu sync.Mutex
}

// SelfID returns the bot identity bound to the connection.
func (c *Conn) SelfID() int64 { return c.selfID }

// WriteText sends one text frame.
func (c *Conn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "Conn", "WriteText", "frame write")
	}
	return nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// connRegistry maps identities to live connections. Exactly one live
// connection per identity: a reservation taken before the WebSocket
// upgrade closes the duplicate-identity race window.
type connRegistry struct {
	mu    sync.RWMutex
	conns map[int64]*Conn
}

func newConnRegistry() *connRegistry {
	return &connRegistry{conns: make(map[int64]*Conn)}
}

// Reserve claims an identity ahead of the upgrade. A second reservation or
// a live connection under the same identity fails.
func (r *connRegistry) Reserve(selfID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[selfID]; exists {
		return errors.ErrDuplicateIdentity
	}
	r.conns[selfID] = nil // reservation marker
	return nil
}

// Activate binds the upgraded connection to its reserved identity.
func (r *connRegistry) Activate(selfID int64, ws *websocket.Conn) *Conn {
	conn := &Conn{selfID: selfID, ws: ws}
	r.mu.Lock()
	r.conns[selfID] = conn
	r.mu.Unlock()
	return conn
}

// Release deregisters an identity, whether reserved or active.
func (r *connRegistry) Release(selfID int64) {
	r.mu.Lock()
	delete(r.conns, selfID)
	r.mu.Unlock()
}

// Get returns the live connection for an identity.
func (r *connRegistry) Get(selfID int64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[selfID]
	if !ok || conn == nil {
		return nil, false
	}
	return conn, true
}

// Sole returns the only live connection if exactly one exists, matching
// the convenience of omitting the identity on single-bot deployments.
func (r *connRegistry) Sole() (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sole *Conn
	for _, conn := range r.conns {
		if conn == nil {
			continue
		}
		if sole != nil {
			return nil, false
		}
		sole = conn
	}
	return sole, sole != nil
}

// Len returns the number of live connections.
func (r *connRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conn := range r.conns {
		if conn != nil {
			n++
		}
	}
	return n
}

// CloseAll closes every live connection.
func (r *connRegistry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	r.conns = make(map[int64]*Conn)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
