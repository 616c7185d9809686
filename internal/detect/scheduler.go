package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Scheduler drives detection passes: on a fixed interval and on demand. A
// pass takes one wall-clock reading, enumerates the pairs active inside the
// trailing window ending at that instant, and scans them concurrently. Pair
// failures are isolated; one bad pair never aborts the rest of the pass.
type Scheduler struct {
	source roles.TelemetrySource
	store  *Store
	bus    plugin.EventBus
	locker pairLocker
	cfg    DetectConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. The locker may be nil when cross-replica
// coordination is disabled.
func NewScheduler(source roles.TelemetrySource, store *Store, bus plugin.EventBus, locker pairLocker, cfg DetectConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		source: source,
		store:  store,
		bus:    bus,
		locker: locker,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins the periodic detection loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		// Run once at startup, then on every tick.
		s.tick()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	return s.ctx != nil && s.ctx.Err() == nil
}

// Trigger starts one detection pass in the background and returns its run ID
// immediately. The run row exists before Trigger returns, so callers can
// poll it right away.
func (s *Scheduler) Trigger(ctx context.Context) (string, error) {
	if s.ctx == nil || s.ctx.Err() != nil {
		return "", fmt.Errorf("scheduler is not running")
	}

	now := time.Now().UTC()
	runID, err := s.beginRun(ctx, telemetry.TriggerManual, now)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.Interval)
		defer cancel()
		s.executePass(runCtx, runID, now)
	}()

	return runID, nil
}

// tick executes one scheduled pass, bounded by the interval so a slow pass
// cannot pile up behind the next one.
func (s *Scheduler) tick() {
	if s.store == nil || s.source == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Interval)
	defer cancel()

	now := time.Now().UTC()
	runID, err := s.beginRun(ctx, telemetry.TriggerScheduled, now)
	if err != nil {
		s.logger.Warn("failed to start detection run", zap.Error(err))
		return
	}
	s.executePass(ctx, runID, now)
}

// beginRun persists a new run row in the running state and announces it on
// the bus. The returned ID identifies the pass everywhere: in logs, events,
// and the API.
func (s *Scheduler) beginRun(ctx context.Context, trigger string, now time.Time) (string, error) {
	run := &telemetry.DetectionRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: now,
		Status:    telemetry.RunStatusRunning,
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		return "", err
	}

	detectionRunsTotal.WithLabelValues(trigger).Inc()
	s.logger.Info("detection run started",
		zap.String("run_id", run.ID),
		zap.String("trigger", trigger))
	s.publish(ctx, TopicRunStarted, run)
	return run.ID, nil
}

// executePass scans every active pair once against the window ending at now.
func (s *Scheduler) executePass(ctx context.Context, runID string, now time.Time) {
	from := now.Add(-s.cfg.Window)

	pairs, err := s.source.ActivePairs(ctx, from, now)
	if err != nil {
		s.logger.Warn("failed to enumerate active pairs",
			zap.String("run_id", runID), zap.Error(err))
		s.finishRun(runID, now, 0, 0, 0)
		return
	}

	var failed, created atomic.Int64

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup

dispatch:
	for i := range pairs {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(p telemetry.Pair) {
			defer wg.Done()
			defer func() { <-sem }()

			detectionPairsScanned.Inc()
			n, err := s.detectPair(ctx, p, from, now)
			created.Add(int64(n))
			if err != nil {
				failed.Add(1)
				detectionPairFailures.Inc()
				s.logger.Warn("pair detection failed",
					zap.String("run_id", runID),
					zap.String("asset_id", p.AssetID),
					zap.String("metric", p.Metric),
					zap.Error(err))
			}
		}(pairs[i])
	}
	wg.Wait()

	s.finishRun(runID, now, len(pairs), int(failed.Load()), int(created.Load()))
}

// finishRun finalizes the run row and announces completion. It uses a
// detached context so the counts survive shutdown mid-pass.
func (s *Scheduler) finishRun(runID string, startedAt time.Time, pairsTotal, pairsFailed, recordsCreated int) {
	finished := time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.FinishRun(ctx, runID, finished, pairsTotal, pairsFailed, recordsCreated); err != nil {
		s.logger.Warn("failed to finalize detection run",
			zap.String("run_id", runID), zap.Error(err))
		return
	}

	detectionRunDuration.Observe(finished.Sub(startedAt).Seconds())
	s.logger.Info("detection run completed",
		zap.String("run_id", runID),
		zap.Int("pairs_total", pairsTotal),
		zap.Int("pairs_failed", pairsFailed),
		zap.Int("records_created", recordsCreated),
		zap.Duration("elapsed", finished.Sub(startedAt)))

	run := &telemetry.DetectionRun{
		ID:             runID,
		StartedAt:      startedAt,
		FinishedAt:     &finished,
		Status:         telemetry.RunStatusCompleted,
		PairsTotal:     pairsTotal,
		PairsFailed:    pairsFailed,
		RecordsCreated: recordsCreated,
	}
	s.publish(ctx, TopicRunCompleted, run)
}

// detectPair scans one (asset, metric) pair: fetch the window, estimate the
// baseline, score every observation in the window, and persist a record for
// each one that crosses the threshold. Returns how many records were
// created.
func (s *Scheduler) detectPair(ctx context.Context, p telemetry.Pair, from, to time.Time) (int, error) {
	if s.cfg.PairTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PairTimeout)
		defer cancel()
	}

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, p)
		if err != nil {
			// The lock is advisory; a broken lock backend must not stop
			// detection.
			s.logger.Debug("pair lock unavailable",
				zap.String("asset_id", p.AssetID),
				zap.String("metric", p.Metric),
				zap.Error(err))
		} else if !ok {
			return 0, nil
		} else {
			defer s.locker.Unlock(ctx, p)
		}
	}

	obs, truncated, err := s.source.ObservationWindow(ctx, p.AssetID, p.Metric, from, to, s.cfg.MaxWindowPoints)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s/%s", ErrPairTimeout, p.AssetID, p.Metric)
		}
		return 0, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if truncated {
		s.logger.Warn("observation window truncated",
			zap.String("asset_id", p.AssetID),
			zap.String("metric", p.Metric),
			zap.Int("limit", s.cfg.MaxWindowPoints))
	}

	baseline, err := estimateBaseline(p, from, to, obs)
	if err != nil {
		if errors.Is(err, ErrInsufficientSample) {
			s.logger.Debug("skipping pair with insufficient samples",
				zap.String("asset_id", p.AssetID),
				zap.String("metric", p.Metric),
				zap.Int("sample_count", len(obs)))
			return 0, nil
		}
		return 0, err
	}

	createdCount := 0
	for i := range obs {
		o := &obs[i]
		flagged, deviation := score(o.Value, baseline, s.cfg.Threshold)
		if !flagged {
			continue
		}

		// Cheap pre-check: windows overlap across passes, so most flagged
		// observations already have a record.
		if seen, err := s.store.AlreadyRecorded(ctx, o.ID); err == nil && seen {
			continue
		}

		record := &telemetry.AnomalyRecord{
			ID:                  uuid.New().String(),
			SourceObservationID: o.ID,
			AssetID:             o.AssetID,
			Metric:              o.Metric,
			Timestamp:           o.Timestamp,
			Score:               deviation,
			Explanation:         explanation(o.AssetID, o.Metric, o.Value, deviation, baseline.Mean),
			Evidence: telemetry.Evidence{
				Mean:       baseline.Mean,
				StdDev:     baseline.StdDev,
				WindowSize: baseline.SampleCount,
			},
			CreatedAt: time.Now().UTC(),
		}

		switch err := s.store.InsertAnomaly(ctx, record); {
		case errors.Is(err, ErrDuplicateRejected):
			duplicateRecordsRejected.Inc()
			continue
		case err != nil:
			if errors.Is(err, context.DeadlineExceeded) {
				return createdCount, fmt.Errorf("%w: %s/%s", ErrPairTimeout, p.AssetID, p.Metric)
			}
			return createdCount, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}

		createdCount++
		anomalyRecordsCreated.Inc()
		s.logger.Info("anomaly detected",
			zap.String("asset_id", o.AssetID),
			zap.String("metric", o.Metric),
			zap.Float64("value", o.Value),
			zap.Float64("score", deviation),
			zap.Float64("mean", baseline.Mean),
			zap.Float64("std_dev", baseline.StdDev))
		s.publish(ctx, TopicAnomalyDetected, record)
	}

	if s.cfg.PairTimeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return createdCount, fmt.Errorf("%w: %s/%s", ErrPairTimeout, p.AssetID, p.Metric)
	}
	return createdCount, nil
}

func (s *Scheduler) publish(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "detect",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
