// Package seed loads a demo telemetry flight through the ingest pipeline on
// startup, so a fresh deployment has observations to scan and one obvious
// anomaly per flagged metric. Seeding is disabled by default and skipped
// whenever the store already holds observations.
package seed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Ingestor is the slice of the telemetry source the seeder needs. Declared
// locally to avoid importing internal/ingest.
type Ingestor interface {
	Ingest(ctx context.Context, events []telemetry.IngestEvent) (telemetry.IngestResponse, error)
	EventTotals(ctx context.Context, topN int) (int64, []telemetry.AssetCount, error)
}

const seedTimeout = 30 * time.Second

// Module implements the seed plugin.
type Module struct {
	logger   *zap.Logger
	cfg      SeedConfig
	ingestor Ingestor
	seeded   bool
}

// New creates a new seed plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "seed",
		Version:      "0.1.0",
		Description:  "Demo telemetry data for fresh deployments",
		Dependencies: []string{"ingest"},
		Required:     false,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal seed config: %w", err)
		}
	}

	if m.ingestor == nil && deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleTelemetrySource) {
			if ing, ok := p.(Ingestor); ok {
				m.ingestor = ing
				break
			}
		}
	}
	if m.cfg.Enabled && m.ingestor == nil {
		m.logger.Warn("no telemetry source module available, seeding is disabled")
	}

	m.logger.Info("seed module initialized",
		zap.Bool("enabled", m.cfg.Enabled),
		zap.String("asset_id", m.cfg.AssetID))
	return nil
}

// SetIngestor overrides the telemetry source resolved during Init. Useful when
// wiring the seeder outside the plugin registry.
func (m *Module) SetIngestor(ing Ingestor) {
	m.ingestor = ing
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

// Start runs the seed synchronously so the data is in place before the first
// detection scan. The whole flight is one ingest batch, bounded by seedTimeout.
func (m *Module) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Debug("seeding disabled")
		return nil
	}
	if m.ingestor == nil {
		m.logger.Warn("seeding skipped: no telemetry source available")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	total, _, err := m.ingestor.EventTotals(ctx, 1)
	if err != nil {
		return fmt.Errorf("check existing observations: %w", err)
	}
	if total > 0 {
		m.logger.Info("seeding skipped: store already has observations",
			zap.Int64("observations", total))
		return nil
	}

	events := demoEvents(m.cfg.AssetID, time.Now().UTC(), m.cfg.Anomalies)
	resp, err := m.ingestor.Ingest(ctx, events)
	if err != nil {
		return fmt.Errorf("seed demo flight: %w", err)
	}
	m.seeded = true

	m.logger.Info("demo flight seeded",
		zap.String("asset_id", m.cfg.AssetID),
		zap.Int("ingested", resp.Ingested),
		zap.Int("rejected", len(resp.Errors)),
		zap.Bool("anomalies", m.cfg.Anomalies))
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("seed module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if !m.cfg.Enabled {
		return plugin.HealthStatus{Status: "healthy", Message: "seeding disabled"}
	}
	if m.ingestor == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "no telemetry source available"}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"seeded": strconv.FormatBool(m.seeded)},
	}
}
