package push

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/majo1520/IT-STOCK-sub001/invalidation"
)

func dialTestServer(t *testing.T, m *Manager) *websocket.Conn {
	t.Helper()

	h := NewHandler(m, zerolog.Nop(), time.Second)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func waitForCount(t *testing.T, m *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection count never reached %d, have %d", want, m.Count())
}

func TestHandlerSendsWelcomeAndRegisters(t *testing.T) {
	m := NewManager(zerolog.Nop(), 0)
	ws := dialTestServer(t, m)

	if env := readEnvelope(t, ws); env.Type != TypeConnection {
		t.Errorf("first frame type = %q, want %q", env.Type, TypeConnection)
	}
	waitForCount(t, m, 1)
}

func TestHandlerAnswersPingWithPong(t *testing.T) {
	m := NewManager(zerolog.Nop(), 0)
	ws := dialTestServer(t, m)
	readEnvelope(t, ws) // welcome

	if err := ws.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if env := readEnvelope(t, ws); env.Type != TypePong {
		t.Errorf("reply type = %q, want %q", env.Type, TypePong)
	}
}

func TestHandlerUnregistersOnClose(t *testing.T) {
	m := NewManager(zerolog.Nop(), 0)
	ws := dialTestServer(t, m)
	readEnvelope(t, ws) // welcome
	waitForCount(t, m, 1)

	_ = ws.Close()
	waitForCount(t, m, 0)
}

func TestHandlerSubscriptionNarrowsDelivery(t *testing.T) {
	m := NewManager(zerolog.Nop(), 0)
	ws := dialTestServer(t, m)
	readEnvelope(t, ws) // welcome
	waitForCount(t, m, 1)

	if err := ws.WriteJSON(map[string]any{
		"type":       TypeSubscribe,
		"categories": []string{"item_update"},
	}); err != nil {
		t.Fatal(err)
	}
	// The read loop handles frames in order; a ping/pong round trip proves
	// the subscription was applied.
	if err := ws.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if env := readEnvelope(t, ws); env.Type != TypePong {
		t.Fatalf("expected pong, got %q", env.Type)
	}

	m.Deliver(invalidation.Event{Category: invalidation.CategoryRefreshNeeded, Timestamp: time.Now()})
	m.Deliver(invalidation.Event{
		Category:  invalidation.CategoryItemUpdate,
		Timestamp: time.Now(),
		Action:    invalidation.ActionCreate,
		Items:     []int64{1},
	})

	env := readEnvelope(t, ws)
	if env.Type != "item_update" {
		t.Errorf("received %q despite subscribing to item_update only", env.Type)
	}
}
