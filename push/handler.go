package push

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler upgrades HTTP requests into push channel connections and runs the
// per-connection read loop. Authentication of push clients is out of scope;
// the upgrader accepts any origin.
type Handler struct {
	manager      *Manager
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	log          zerolog.Logger
}

// NewHandler creates the websocket endpoint handler bound to manager.
// writeTimeout <= 0 uses DefaultWriteTimeout.
func NewHandler(manager *Manager, logger zerolog.Logger, writeTimeout time.Duration) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		log:          logger.With().Str("component", "push").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newWSConn(ws, h.writeTimeout)

	// Welcome frame before registration so the client always sees it first.
	if err := conn.Send(Envelope{Type: TypeConnection, Timestamp: time.Now()}); err != nil {
		_ = conn.Close()
		return
	}

	h.manager.Register(conn)
	go h.readLoop(conn)
}

// readLoop consumes client frames until the connection dies, at which point
// the connection is unregistered. This is what keeps registry entries from
// dangling after a client goes away.
func (h *Handler) readLoop(conn *wsConn) {
	defer func() {
		h.manager.Unregister(conn)
		_ = conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("conn", conn.ID()).Msg("connection closed")
			}
			return
		}

		switch msg.Type {
		case TypePing:
			if err := conn.Send(Envelope{Type: TypePong, Timestamp: time.Now()}); err != nil {
				return
			}
		case TypePong:
			// Client answered a heartbeat; nothing to do.
		case TypeSubscribe:
			conn.subscribe(msg.Categories)
		default:
			h.log.Debug().Str("conn", conn.ID()).Str("type", msg.Type).Msg("ignoring unknown client frame")
		}
	}
}
