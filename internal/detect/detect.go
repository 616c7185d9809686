// Package detect implements the anomaly detection engine: a scheduler that
// scans every active (asset, metric) pair on an interval, a z-score scorer
// against a trailing-window baseline, and durable anomaly records with an
// at-most-one guarantee per source observation.
package detect

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin           = (*Module)(nil)
	_ plugin.HTTPProvider     = (*Module)(nil)
	_ plugin.HealthChecker    = (*Module)(nil)
	_ plugin.Validator        = (*Module)(nil)
	_ roles.DetectionProvider = (*Module)(nil)
)

// Module implements the detect plugin.
type Module struct {
	logger    *zap.Logger
	cfg       DetectConfig
	store     *Store
	bus       plugin.EventBus
	source    roles.TelemetrySource
	scheduler *Scheduler
	locker    pairLocker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new detect plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "detect",
		Version:      "0.1.0",
		Description:  "Statistical anomaly detection over telemetry windows",
		Dependencies: []string{"ingest"},
		Required:     true,
		Roles:        []string{roles.RoleDetection},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal detect config: %w", err)
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(context.Background(), "detect", migrations()); err != nil {
			return fmt.Errorf("detect migrations: %w", err)
		}
		m.store = NewStore(deps.Store.DB())
	}

	m.bus = deps.Bus

	if m.source == nil && deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleTelemetrySource) {
			if src, ok := p.(roles.TelemetrySource); ok {
				m.source = src
				break
			}
		}
	}
	if m.source == nil {
		m.logger.Warn("no telemetry source module available, detection is disabled")
	}

	m.logger.Info("detect module initialized",
		zap.Float64("threshold", m.cfg.Threshold),
		zap.Duration("window", m.cfg.Window),
		zap.Duration("interval", m.cfg.Interval),
		zap.Int("workers", m.cfg.Workers))
	return nil
}

// SetSource overrides the telemetry source resolved during Init. Useful when
// wiring the engine outside the plugin registry.
func (m *Module) SetSource(src roles.TelemetrySource) {
	m.source = src
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if m.source != nil && m.store != nil {
		if m.cfg.Lock.Enabled {
			m.locker = newRedisLocker(m.cfg.Lock)
			m.logger.Info("pair locking enabled", zap.String("addr", m.cfg.Lock.Addr))
		}

		m.scheduler = NewScheduler(m.source, m.store, m.bus, m.locker, m.cfg, m.logger)
		m.scheduler.Start(m.ctx)
	}

	m.startMaintenance()

	m.logger.Info("detect module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	if m.locker != nil {
		if err := m.locker.Close(); err != nil {
			m.logger.Warn("failed to close pair locker", zap.Error(err))
		}
	}

	m.logger.Info("detect module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.store == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "no store configured"}
	}
	if m.source == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "no telemetry source available"}
	}

	count, err := m.store.CountAnomalies(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}

	details := map[string]string{
		"anomaly_records": strconv.FormatInt(count, 10),
		"threshold":       strconv.FormatFloat(m.cfg.Threshold, 'f', -1, 64),
	}
	if m.scheduler != nil {
		details["scheduler_running"] = strconv.FormatBool(m.scheduler.Running())
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// -- roles.DetectionProvider --

// TriggerRun implements roles.DetectionProvider.
func (m *Module) TriggerRun(ctx context.Context) (string, error) {
	if m.scheduler == nil {
		return "", fmt.Errorf("detection scheduler is not running")
	}
	return m.scheduler.Trigger(ctx)
}

// Anomalies implements roles.DetectionProvider.
func (m *Module) Anomalies(ctx context.Context, assetID string, since, until time.Time, limit int) ([]telemetry.AnomalyRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	f := AnomalyFilter{AssetID: assetID, Limit: limit}
	if !since.IsZero() {
		f.Since = &since
	}
	if !until.IsZero() {
		f.Until = &until
	}
	return m.store.ListAnomalies(ctx, f)
}

// Runs implements roles.DetectionProvider.
func (m *Module) Runs(ctx context.Context, limit int) ([]telemetry.DetectionRun, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListRuns(ctx, limit)
}

// AnomalyTotals implements roles.DetectionProvider.
func (m *Module) AnomalyTotals(ctx context.Context, topN int) (int64, []telemetry.AssetCount, error) {
	if m.store == nil {
		return 0, nil, nil
	}
	total, err := m.store.CountAnomalies(ctx)
	if err != nil {
		return 0, nil, err
	}
	top, err := m.store.TopAssetsByAnomalies(ctx, topN)
	if err != nil {
		return 0, nil, err
	}
	return total, top, nil
}
