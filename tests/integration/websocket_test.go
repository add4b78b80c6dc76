//go:build integration

package integration

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"lotmarket/internal/models"
	ws "lotmarket/internal/websocket"
)

// dialWS connects a test client to /ws/stream
func dialWS(t *testing.T, serverURL, userID string) *gws.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws/stream"
	if userID != "" {
		wsURL += "?user_id=" + userID
	}

	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one message with a deadline
func readEnvelope(t *testing.T, conn *gws.Conn) *ws.Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var env ws.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return &env
}

func waitForConnection(t *testing.T, hub *ws.Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.IsUserConnected(userID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s never connected", userID)
}

func TestWebSocketTargetedDelivery(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	alice := dialWS(t, ts.Server.URL, "alice")
	dialWS(t, ts.Server.URL, "bob")
	waitForConnection(t, ts.Hub, "alice")
	waitForConnection(t, ts.Hub, "bob")

	delivered := ts.Hub.SendToUser("alice", models.EventNegotiationTurn, map[string]string{"asset": "GOLD"})
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}

	env := readEnvelope(t, alice)
	if env.Type != models.EventNegotiationTurn {
		t.Errorf("expected %s, got %s", models.EventNegotiationTurn, env.Type)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	alice := dialWS(t, ts.Server.URL, "alice")
	bob := dialWS(t, ts.Server.URL, "bob")
	waitForConnection(t, ts.Hub, "alice")
	waitForConnection(t, ts.Hub, "bob")

	ts.Hub.Broadcast(models.EventMarketUpdate, models.MarketUpdateEvent{Asset: "GOLD"})

	for _, conn := range []*gws.Conn{alice, bob} {
		env := readEnvelope(t, conn)
		if env.Type != models.EventMarketUpdate {
			t.Errorf("expected %s, got %s", models.EventMarketUpdate, env.Type)
		}
	}
}

func TestWebSocketTradeEventAfterMatch(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	now := time.Now()
	insertUser(t, ts.DB, "buyer", "alice", "")
	insertUser(t, ts.DB, "seller", "bob", "")
	insertOrder(t, ts.DB, "bid-1", models.SideBid, "GOLD", "100.00", 5, "buyer", now)
	insertOrder(t, ts.DB, "off-1", models.SideOffer, "GOLD", "100.00", 5, "seller", now)

	buyerConn := dialWS(t, ts.Server.URL, "buyer")
	waitForConnection(t, ts.Hub, "buyer")

	if err := ts.Engine.ProcessAsset("GOLD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// Execution notifications are delivered asynchronously after commit
	env := readEnvelope(t, buyerConn)
	if env.Type != models.EventTradeExecuted && env.Type != models.EventOrderMatched &&
		env.Type != models.EventOrderBookUpdate {
		t.Errorf("unexpected event type: %s", env.Type)
	}
}
