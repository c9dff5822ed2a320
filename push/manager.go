package push

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/majo1520/IT-STOCK-sub001/invalidation"
)

const (
	// DefaultHeartbeatInterval matches the reference 30s liveness period.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultWriteTimeout bounds a single send so one stalled connection
	// cannot hold up fan-out to the rest.
	DefaultWriteTimeout = 5 * time.Second
)

// Manager owns the set of open push connections and performs best-effort
// fan-out. It is the only component that mutates the registry. Construct one
// instance at startup and pass it by reference to anything that broadcasts.
type Manager struct {
	conns             *xsync.MapOf[string, Conn]
	heartbeatInterval time.Duration
	log               zerolog.Logger
}

// NewManager creates an empty connection registry. heartbeatInterval <= 0
// uses DefaultHeartbeatInterval.
func NewManager(logger zerolog.Logger, heartbeatInterval time.Duration) *Manager {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Manager{
		conns:             xsync.NewMapOf[string, Conn](),
		heartbeatInterval: heartbeatInterval,
		log:               logger.With().Str("component", "push").Logger(),
	}
}

// Register adds a connection to the live set. The caller must only register
// connections whose underlying channel is open.
func (m *Manager) Register(conn Conn) {
	m.conns.Store(conn.ID(), conn)
	m.log.Debug().Str("conn", conn.ID()).Int("live", m.Count()).Msg("connection registered")
}

// Unregister removes a connection from the live set. Safe to call more than
// once for the same connection.
func (m *Manager) Unregister(conn Conn) {
	m.conns.Delete(conn.ID())
	m.log.Debug().Str("conn", conn.ID()).Int("live", m.Count()).Msg("connection unregistered")
}

// Count reports the current number of live connections.
func (m *Manager) Count() int {
	return m.conns.Size()
}

// Deliver implements invalidation.Sink: it converts the event to a wire frame
// and attempts delivery to every subscribed connection. A failure on one
// connection unregisters and closes it, and iteration continues for the rest.
func (m *Manager) Deliver(ev invalidation.Event) {
	env := envelopeFor(ev)
	m.conns.Range(func(_ string, conn Conn) bool {
		if !conn.Subscribed(ev.Category) {
			return true
		}
		m.send(conn, env)
		return true
	})
}

// StartHeartbeat launches the liveness loop: a ping frame to every open
// connection on a fixed period, independent of request traffic. Dead
// connections are pruned when the ping write fails.
func (m *Manager) StartHeartbeat(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.closeAll()
				return
			case <-ticker.C:
				m.Heartbeat()
			}
		}
	}()
}

// Heartbeat sends one liveness ping to every connection.
func (m *Manager) Heartbeat() {
	env := Envelope{Type: TypePing, Timestamp: time.Now()}
	m.conns.Range(func(_ string, conn Conn) bool {
		m.send(conn, env)
		return true
	})
}

// send delivers one frame, unregistering the connection on failure. The error
// is isolated here so a single bad connection never aborts a broadcast.
func (m *Manager) send(conn Conn, env Envelope) {
	if err := conn.Send(env); err != nil {
		m.log.Warn().Err(err).Str("conn", conn.ID()).Str("type", env.Type).Msg("send failed, dropping connection")
		m.Unregister(conn)
		_ = conn.Close()
	}
}

func (m *Manager) closeAll() {
	m.conns.Range(func(_ string, conn Conn) bool {
		m.Unregister(conn)
		_ = conn.Close()
		return true
	})
}
