// Package notify delivers anomaly events to configured webhook endpoints.
//
// Each detected anomaly is POSTed as JSON to every configured URL, signed
// with HMAC-SHA256 in the X-Signature header when a shared secret is set.
// Delivery failures are logged and counted; they never block detection.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/internal/detect"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
	_ roles.Notifier         = (*Module)(nil)
)

// Module implements the notify plugin.
type Module struct {
	logger  *zap.Logger
	cfg     NotifyConfig
	senders []*WebhookSender
}

// New creates a new notify plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "notify",
		Version:     "0.1.0",
		Description: "Webhook notifications for detected anomalies",
		Roles:       []string{roles.RoleNotification},
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal notify config: %w", err)
		}
	}

	m.senders = make([]*WebhookSender, 0, len(m.cfg.URLs))
	for _, u := range m.cfg.URLs {
		m.senders = append(m.senders, NewWebhookSender(u, m.cfg.Secret, m.cfg.Headers, m.cfg.Timeout))
	}

	m.logger.Info("notify module initialized",
		zap.Int("webhooks", len(m.senders)),
		zap.Bool("signing", m.cfg.Secret != ""))
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("notify module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("notify module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if len(m.senders) == 0 {
		return plugin.HealthStatus{Status: "degraded", Message: "no webhook urls configured"}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"webhooks": strconv.Itoa(len(m.senders)),
		},
	}
}

// Subscriptions delivers a webhook for every detected anomaly.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: detect.TopicAnomalyDetected, Handler: m.handleAnomalyEvent},
	}
}

// handleAnomalyEvent forwards one detected anomaly to the configured
// endpoints.
func (m *Module) handleAnomalyEvent(ctx context.Context, event plugin.Event) {
	rec, ok := event.Payload.(*telemetry.AnomalyRecord)
	if !ok {
		m.logger.Warn("unexpected payload type for anomaly event",
			zap.String("topic", event.Topic))
		return
	}
	if len(m.senders) == 0 {
		return
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	err := m.Notify(ctx, roles.Notification{
		EventType: "anomaly.detected",
		Subject:   rec.Explanation,
		Timestamp: ts,
		Payload:   rec,
	})
	if err != nil {
		m.logger.Warn("anomaly notification failed",
			zap.String("record_id", rec.ID),
			zap.String("asset_id", rec.AssetID),
			zap.String("metric", rec.Metric),
			zap.Error(err))
	}
}

// Notify implements roles.Notifier. Delivery is attempted to every
// configured endpoint; one failing endpoint does not stop the rest.
func (m *Module) Notify(ctx context.Context, n roles.Notification) error {
	payload := webhookPayload{
		EventType: n.EventType,
		Subject:   n.Subject,
		Timestamp: n.Timestamp,
		Data:      n.Payload,
	}

	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, payload); err != nil {
			webhookFailures.WithLabelValues(s.url).Inc()
			m.logger.Warn("webhook delivery failed",
				zap.String("url", s.url),
				zap.String("event_type", n.EventType),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		webhookDeliveries.WithLabelValues(s.url).Inc()
		m.logger.Debug("webhook delivered",
			zap.String("url", s.url),
			zap.String("event_type", n.EventType))
	}
	return errors.Join(errs...)
}
