package broker

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

func TestDashboardBroadcastsWatchedSubject(t *testing.T) {
	dashboard := NewDashboard(nil)
	adapter := New(NewMemoryTransport(), "test-node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dashboard.Watch(ctx, adapter, "events:live"); err != nil {
		t.Fatalf("watch: %v", err)
	}

	srv := httptest.NewServer(dashboard)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine time to register the connection before
	// publishing, since registration happens asynchronously after upgrade.
	time.Sleep(20 * time.Millisecond)

	event := eventstore.Event{StreamID: "s1", EventType: "attention.shift"}
	if err := adapter.Publish(ctx, "events:live", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), "attention.shift") {
		t.Fatalf("expected event_type in frame, got %s", msg)
	}
}

func TestDashboardDropsSlowClientInsteadOfBlocking(t *testing.T) {
	dashboard := NewDashboard(nil)
	client := &dashboardClient{send: make(chan []byte, 1)}

	dashboard.mu.Lock()
	dashboard.clients[client] = true
	dashboard.mu.Unlock()

	// Fill the buffer, then broadcast again: the second send must not
	// block, and the overflowing client is evicted.
	client.send <- []byte("first")
	dashboard.broadcast([]byte("second"))

	dashboard.mu.RLock()
	_, stillRegistered := dashboard.clients[client]
	dashboard.mu.RUnlock()

	if stillRegistered {
		t.Fatal("expected slow client to be evicted on buffer overflow")
	}
}
