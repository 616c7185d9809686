// Package feed streams telemetry lifecycle events to WebSocket clients.
//
// The module subscribes to ingest and detect bus topics and relays each
// event as a JSON envelope over GET /feed. The stream is broadcast-only;
// anything a client sends is read and discarded.
package feed

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/internal/detect"
	"github.com/nikhilij/rocket-telemetry-ai/internal/ingest"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// Module implements the feed plugin.
type Module struct {
	logger *zap.Logger
	hub    *Hub
}

// New creates a new feed plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "feed",
		Version:     "0.1.0",
		Description: "Live telemetry event stream over WebSocket",
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.hub = NewHub(m.logger)
	m.logger.Info("feed module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("feed module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("feed module stopped",
		zap.Int("clients", m.hub.ClientCount()))
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.hub == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "hub not initialized"}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"clients": strconv.Itoa(m.hub.ClientCount()),
		},
	}
}

// Subscriptions relays ingest and detect lifecycle topics to connected
// clients. The registry wires these after Init.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: ingest.TopicObservationIngested, Handler: m.relay(MessageObservationIngested)},
		{Topic: detect.TopicAnomalyDetected, Handler: m.relay(MessageAnomalyDetected)},
		{Topic: detect.TopicRunStarted, Handler: m.relay(MessageRunStarted)},
		{Topic: detect.TopicRunCompleted, Handler: m.relay(MessageRunCompleted)},
	}
}

// relay wraps a bus event into the feed envelope and broadcasts it.
func (m *Module) relay(t MessageType) plugin.EventHandler {
	return func(_ context.Context, event plugin.Event) {
		ts := event.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		m.hub.Broadcast(Message{
			Type:      t,
			Timestamp: ts,
			Data:      event.Payload,
		})
	}
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/feed", Handler: m.handleFeed},
	}
}

// handleFeed upgrades the connection and streams events until the client
// disconnects.
func (m *Module) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Allow any origin; the feed carries no session credentials.
		InsecureSkipVerify: true,
	})
	if err != nil {
		m.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, sendBuffer),
		logger: m.logger,
	}

	m.hub.Register(client)

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until the client disconnects.
	client.readPump(ctx)

	m.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
