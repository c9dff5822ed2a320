package push

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/majo1520/IT-STOCK-sub001/invalidation"
)

// Conn is one open push channel. Implementations must be safe for concurrent
// Send calls; the manager sends from both the broadcast and heartbeat paths.
type Conn interface {
	ID() string
	Send(env Envelope) error
	Close() error
	// Subscribed reports whether the client wants the given category.
	// A connection with no declared subscriptions receives everything.
	Subscribed(c invalidation.Category) bool
}

// wsConn wraps a gorilla websocket connection. Writes are serialized with a
// mutex because gorilla permits at most one concurrent writer.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex // guards ws writes

	subMu sync.RWMutex
	subs  map[invalidation.Category]struct{} // nil means all categories
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteJSON(env)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) Subscribed(cat invalidation.Category) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.subs == nil {
		return true
	}
	_, ok := c.subs[cat]
	return ok
}

// subscribe replaces the connection's category filter. Unknown wire names are
// ignored; an empty resolved set resets the connection to all categories.
func (c *wsConn) subscribe(wireNames []string) {
	subs := make(map[invalidation.Category]struct{}, len(wireNames))
	for _, name := range wireNames {
		if cat, ok := invalidation.ParseCategory(name); ok {
			subs[cat] = struct{}{}
		}
	}
	c.subMu.Lock()
	if len(subs) == 0 {
		c.subs = nil
	} else {
		c.subs = subs
	}
	c.subMu.Unlock()
}
