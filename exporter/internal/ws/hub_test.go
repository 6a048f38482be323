package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
	"github.com/storepulse/storepulse/exporter/internal/status"
	"github.com/storepulse/storepulse/exporter/internal/ws"
)

const testInterval = 20 * time.Millisecond

func startHub(t *testing.T, st *status.Store) (string, *ws.Hub, context.CancelFunc) {
	t.Helper()
	hub := ws.New(st, testInterval)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m ws.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestHub_ConnectReceivesSnapshot(t *testing.T) {
	st := status.New(time.Minute)
	st.ObserveCycle(orchestrator.CycleResult{StoreID: "main", Success: true})
	url, _, _ := startHub(t, st)

	m := readMessage(t, dial(t, url))
	if m.Event != "status" {
		t.Errorf("event: got %q, want status", m.Event)
	}
	if m.Data.GeneratedAt.IsZero() {
		t.Error("generated_at missing")
	}
	if len(m.Data.Stores) != 1 || m.Data.Stores[0].StoreID != "main" {
		t.Errorf("stores: got %+v", m.Data.Stores)
	}
}

func TestHub_BroadcastOnTick(t *testing.T) {
	st := status.New(time.Minute)
	url, _, _ := startHub(t, st)

	conn := dial(t, url)
	if m := readMessage(t, conn); len(m.Data.Stores) != 0 {
		t.Fatalf("initial stores: got %d, want 0", len(m.Data.Stores))
	}

	st.ObserveProbe("late", true, time.Now())
	// A tick built before the probe may still be in flight.
	for i := 0; i < 5; i++ {
		m := readMessage(t, conn)
		if len(m.Data.Stores) == 1 && m.Data.Stores[0].StoreID == "late" {
			return
		}
	}
	t.Error("no broadcast carried the new store")
}

func TestHub_CountAndDisconnect(t *testing.T) {
	url, hub, _ := startHub(t, status.New(time.Minute))

	conn := dial(t, url)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_CancelClosesClients(t *testing.T) {
	url, hub, cancel := startHub(t, status.New(time.Minute))

	conn := dial(t, url)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_PlainHTTPRejected(t *testing.T) {
	srv := httptest.NewServer(ws.New(status.New(time.Minute), testInterval))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
