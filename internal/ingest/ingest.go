// Package ingest implements telemetry observation intake: batch ingestion
// over HTTP, durable storage in SQLite, and the window/pair queries the
// detection engine consumes.
package ingest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin         = (*Module)(nil)
	_ plugin.HTTPProvider   = (*Module)(nil)
	_ plugin.HealthChecker  = (*Module)(nil)
	_ roles.TelemetrySource = (*Module)(nil)
)

// Module implements the ingest plugin.
type Module struct {
	logger *zap.Logger
	cfg    IngestConfig
	store  *Store
	bus    plugin.EventBus

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new ingest plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "ingest",
		Version:     "0.1.0",
		Description: "Telemetry observation intake and storage",
		Roles:       []string{roles.RoleTelemetrySource},
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal ingest config: %w", err)
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(context.Background(), "ingest", migrations()); err != nil {
			return fmt.Errorf("ingest migrations: %w", err)
		}
		m.store = NewStore(deps.Store.DB())
	}

	m.bus = deps.Bus

	m.logger.Info("ingest module initialized",
		zap.Int("max_batch", m.cfg.MaxBatch))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.logger.Info("ingest module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("ingest module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.store == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "no store configured"}
	}

	count, err := m.store.CountObservations(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}

	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"observations_stored": strconv.FormatInt(count, 10),
		},
	}
}

// Ingest validates a batch of events and stores the valid ones. Invalid
// events are reported per-index in the response; a non-nil error means the
// storage write itself failed and nothing was persisted.
func (m *Module) Ingest(ctx context.Context, events []telemetry.IngestEvent) (telemetry.IngestResponse, error) {
	resp := telemetry.IngestResponse{Errors: []string{}}
	if len(events) == 0 {
		resp.Errors = append(resp.Errors, "no events in request")
		return resp, nil
	}

	accepted := make([]telemetry.Observation, 0, len(events))
	assets := make(map[string]struct{})
	for i := range events {
		e := &events[i]
		if reason := validateEvent(e); reason != "" {
			resp.Errors = append(resp.Errors, fmt.Sprintf("event %d: %s", i, reason))
			continue
		}
		accepted = append(accepted, telemetry.Observation{
			ID:        uuid.New().String(),
			AssetID:   e.AssetID,
			Metric:    e.Metric,
			Timestamp: e.Timestamp.UTC(),
			Value:     e.Value,
			Unit:      e.Unit,
			Tags:      e.Tags,
		})
		assets[e.AssetID] = struct{}{}
	}

	if len(accepted) > 0 {
		if m.store == nil {
			return resp, fmt.Errorf("no store configured")
		}
		if err := m.store.InsertObservations(ctx, accepted); err != nil {
			return resp, fmt.Errorf("store observations: %w", err)
		}
	}
	resp.Ingested = len(accepted)

	if m.bus != nil && resp.Ingested > 0 {
		assetIDs := make([]string, 0, len(assets))
		for id := range assets {
			assetIDs = append(assetIDs, id)
		}
		m.bus.PublishAsync(m.ctx, plugin.Event{
			Topic:     TopicObservationIngested,
			Source:    "ingest",
			Timestamp: time.Now().UTC(),
			Payload: BatchSummary{
				Ingested: resp.Ingested,
				Rejected: len(resp.Errors),
				AssetIDs: assetIDs,
			},
		})
	}

	m.logger.Debug("batch ingested",
		zap.Int("accepted", resp.Ingested),
		zap.Int("rejected", len(resp.Errors)))
	return resp, nil
}

// validateEvent checks one ingest event. It returns a human-readable reason
// when the event must be rejected, or "" when the event is acceptable.
func validateEvent(e *telemetry.IngestEvent) string {
	switch {
	case e.AssetID == "":
		return "asset_id is required"
	case e.Metric == "":
		return "metric is required"
	case e.Timestamp.IsZero():
		return "timestamp is required"
	case math.IsNaN(e.Value) || math.IsInf(e.Value, 0):
		return "value must be finite"
	}
	return ""
}

// -- roles.TelemetrySource --

// ObservationWindow implements roles.TelemetrySource.
func (m *Module) ObservationWindow(ctx context.Context, assetID, metric string, from, to time.Time, limit int) ([]telemetry.Observation, bool, error) {
	if m.store == nil {
		return nil, false, nil
	}
	return m.store.Window(ctx, assetID, metric, from, to, limit)
}

// ActivePairs implements roles.TelemetrySource.
func (m *Module) ActivePairs(ctx context.Context, from, to time.Time) ([]telemetry.Pair, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ActivePairs(ctx, from, to)
}

// EventTotals implements roles.TelemetrySource.
func (m *Module) EventTotals(ctx context.Context, topN int) (int64, []telemetry.AssetCount, error) {
	if m.store == nil {
		return 0, nil, nil
	}
	total, err := m.store.CountObservations(ctx)
	if err != nil {
		return 0, nil, err
	}
	top, err := m.store.TopAssetsByCount(ctx, topN)
	if err != nil {
		return 0, nil, err
	}
	return total, top, nil
}

// Assets implements roles.TelemetrySource.
func (m *Module) Assets(ctx context.Context) ([]telemetry.AssetSummary, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListAssets(ctx)
}
