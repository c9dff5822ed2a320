package push

import (
	"time"

	"github.com/majo1520/IT-STOCK-sub001/invalidation"
)

// Message types that are not invalidation categories.
const (
	TypeConnection = "connection"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeSubscribe  = "subscribe"
)

// Envelope is the server-to-client message frame. Category messages use the
// category wire name as Type; Action and Items are present only on
// item_update frames.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action,omitempty"`
	Items     []int64   `json:"items,omitempty"`
}

// clientMessage is the client-to-server frame: liveness pings and category
// subscription declarations.
type clientMessage struct {
	Type       string   `json:"type"`
	Categories []string `json:"categories,omitempty"`
}

// envelopeFor converts an invalidation event into its wire frame.
func envelopeFor(ev invalidation.Event) Envelope {
	env := Envelope{
		Type:      ev.Category.WireName(),
		Timestamp: ev.Timestamp,
	}
	if ev.Category == invalidation.CategoryItemUpdate {
		env.Action = string(ev.Action)
		env.Items = ev.Items
	}
	return env
}
