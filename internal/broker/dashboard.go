package broker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vsm-systems/corevsm/internal/eventstore"
	"github.com/vsm-systems/corevsm/internal/logging"
)

const (
	dashboardWriteWait = 10 * time.Second
	dashboardPingPeriod = 30 * time.Second
	dashboardPongWait = 2 * dashboardPingPeriod
	dashboardSendBuffer = 32
)

var dashboardUpgrader = websocket.Upgrader{
	ReadBufferSize: 4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dashboardClient is one connected external observer (a live dashboard,
// an ops console) fed from the Broker Adapter's in-process subscriptions.
// Grounded on Client/send-channel pair in main.go, trimmed
// to the read-nothing, write-only direction a pure observer needs.
type dashboardClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Dashboard fans JSON-encoded events out to connected websocket clients,
// one per subscribed topic. It owns no business logic: every frame it
// ever sends arrived from a Broker Adapter subscription, so dashboards
// see exactly what the durable transport saw.
type Dashboard struct {
	mu sync.RWMutex
	clients map[*dashboardClient]bool
	logger *logging.Logger
}

// NewDashboard constructs an empty Dashboard hub.
func NewDashboard(logger *logging.Logger) *Dashboard {
	return &Dashboard{
		clients: make(map[*dashboardClient]bool),
		logger: logger,
	}
}

// Watch subscribes the Dashboard to subject on adapter; every event that
// arrives is broadcast to all currently-connected clients. Call once per
// topic the dashboard should expose (typically events:live,
// analytics:insights, and the emergency:* subjects).
func (d *Dashboard) Watch(ctx context.Context, adapter *Adapter, subject string) error {
	_, err := adapter.Subscribe(ctx, subject, func(_ context.Context, event eventstore.Event) error {
		data, err := eventstore.EncodeEventJSON(event)
		if err != nil {
			return err
		}
		d.broadcast(data)
		return nil
	})
	return err
}

func (d *Dashboard) broadcast(msg []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(d.clients, c)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection as a dashboard observer until it disconnects.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := dashboardUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("dashboard upgrade failed", logging.Error(err))
		}
		return
	}

	client := &dashboardClient{conn: conn, send: make(chan []byte, dashboardSendBuffer)}
	d.mu.Lock()
	d.clients[client] = true
	d.mu.Unlock()

	go d.writePump(client)
	go d.readPump(client)
}

// readPump only exists to notice disconnects and keepalive pongs; a
// dashboard client is not expected to send anything meaningful.
func (d *Dashboard) readPump(client *dashboardClient) {
	defer d.deregister(client)
	client.conn.SetReadLimit(1024)
	_ = client.conn.SetReadDeadline(time.Now().Add(dashboardPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(dashboardPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (d *Dashboard) writePump(client *dashboardClient) {
	ticker := time.NewTicker(dashboardPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (d *Dashboard) deregister(client *dashboardClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.clients[client]; ok {
		delete(d.clients, client)
		close(client.send)
	}
}
