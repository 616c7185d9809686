package detect

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startMaintenance launches a background goroutine that periodically prunes
// anomaly records and detection runs past the retention window. A zero
// retention keeps everything and skips the loop entirely.
func (m *Module) startMaintenance() {
	if m.cfg.Retention <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance()
			}
		}
	}()
}

// runMaintenance executes a single retention sweep.
func (m *Module) runMaintenance() {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-m.cfg.Retention)

	deleted, err := m.store.DeleteAnomaliesBefore(ctx, cutoff)
	if err != nil {
		m.logger.Warn("failed to delete old anomaly records", zap.Error(err))
	} else if deleted > 0 {
		m.logger.Info("purged old anomaly records", zap.Int64("count", deleted))
	}

	deletedRuns, err := m.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		m.logger.Warn("failed to delete old detection runs", zap.Error(err))
	} else if deletedRuns > 0 {
		m.logger.Info("purged old detection runs", zap.Int64("count", deletedRuns))
	}
}
