// Package mqtt bridges detection events onto an external MQTT broker.
//
// Anomaly and run-lifecycle events from the bus are republished as JSON
// under a configurable topic prefix, so ground-station dashboards and other
// integrations can consume them without polling the HTTP API. Without a
// configured broker the module is an explicit no-op.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/internal/detect"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
)

// Module implements the mqtt plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config

	mu     sync.RWMutex
	client pahomqtt.Client
}

// New creates a new mqtt plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "mqtt",
		Version:     "0.1.0",
		Description: "Bridges anomaly and run events to an MQTT broker",
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal mqtt config: %w", err)
		}
	}

	if m.cfg.BrokerURL == "" {
		m.logger.Warn("no mqtt broker configured, detection events will not be bridged")
	}

	m.logger.Info("mqtt module initialized",
		zap.String("broker_url", m.cfg.BrokerURL),
		zap.String("client_id", m.cfg.ClientID),
		zap.String("topic_prefix", m.cfg.TopicPrefix),
		zap.Uint8("qos", m.cfg.QoS))
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.BrokerURL == "" {
		m.logger.Info("mqtt module started (no broker configured)")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetConnectTimeout(m.cfg.Timeout).
		SetConnectRetry(true).
		SetAutoReconnect(true)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	// A broker that is down at startup must not block the server; paho
	// keeps retrying in the background.
	token := client.Connect()
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connect timed out, retrying in background",
			zap.String("broker_url", m.cfg.BrokerURL))
	case token.Error() != nil:
		m.logger.Warn("mqtt connect failed, retrying in background",
			zap.String("broker_url", m.cfg.BrokerURL),
			zap.Error(token.Error()))
	default:
		m.logger.Info("mqtt connected", zap.String("broker_url", m.cfg.BrokerURL))
	}

	m.logger.Info("mqtt module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	m.logger.Info("mqtt module stopped")
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: detect.TopicAnomalyDetected, Handler: m.publishEvent},
		{Topic: detect.TopicRunStarted, Handler: m.publishEvent},
		{Topic: detect.TopicRunCompleted, Handler: m.publishEvent},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.cfg.BrokerURL == "" {
		return plugin.HealthStatus{
			Status:  "healthy",
			Message: "no broker configured",
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "not connected to mqtt broker",
		}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Message: "connected to " + m.cfg.BrokerURL,
	}
}

// topicFor maps a bus topic to its MQTT topic under the configured prefix.
func (m *Module) topicFor(busTopic string) string {
	switch busTopic {
	case detect.TopicAnomalyDetected:
		return m.cfg.TopicPrefix + "/anomaly/detected"
	case detect.TopicRunStarted:
		return m.cfg.TopicPrefix + "/run/started"
	case detect.TopicRunCompleted:
		return m.cfg.TopicPrefix + "/run/completed"
	default:
		return m.cfg.TopicPrefix + "/unknown"
	}
}

// publishEvent republishes one bus event to the broker. Failures are logged
// and the event dropped; the bridge never blocks detection.
func (m *Module) publishEvent(_ context.Context, event plugin.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil || !m.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		m.logger.Warn("failed to marshal mqtt payload",
			zap.String("bus_topic", event.Topic),
			zap.Error(err))
		return
	}

	topic := m.topicFor(event.Topic)
	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		m.logger.Warn("mqtt publish timed out", zap.String("mqtt_topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("mqtt publish failed",
			zap.String("mqtt_topic", topic),
			zap.Error(err))
		return
	}

	m.logger.Debug("event bridged",
		zap.String("mqtt_topic", topic),
		zap.String("bus_topic", event.Topic))
}
