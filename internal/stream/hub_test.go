package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type snapshot struct {
	Network string   `json:"network"`
	Symbols []string `json:"symbols"`
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) snapshot {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var s snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1 := dialHub(t, srv)
	defer c1.Close()
	c2 := dialHub(t, srv)
	defer c2.Close()

	// wait for both registrations
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 2 {
		t.Fatalf("want 2 clients, got %d", hub.ClientCount())
	}

	hub.Broadcast(snapshot{Network: "solana", Symbols: []string{"BONK", "WIF"}})

	for _, conn := range []*websocket.Conn{c1, c2} {
		got := readSnapshot(t, conn)
		if got.Network != "solana" || len(got.Symbols) != 2 {
			t.Fatalf("unexpected payload: %+v", got)
		}
	}
}

func TestHub_LateJoinerGetsLastSnapshot(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast(snapshot{Network: "solana", Symbols: []string{"MOODENG"}})

	conn := dialHub(t, srv)
	defer conn.Close()

	got := readSnapshot(t, conn)
	if len(got.Symbols) != 1 || got.Symbols[0] != "MOODENG" {
		t.Fatalf("late joiner did not get the snapshot: %+v", got)
	}
}

func TestHub_DisconnectDetaches(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("client not detached, count=%d", hub.ClientCount())
	}
}
