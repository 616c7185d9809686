// Package simulator streams synthetic rocket telemetry to a telemetryd
// ingest endpoint. Readings are uniform draws from each channel's nominal
// band; at a configurable rate a batch replaces one reading with that
// channel's fault value so downstream detection has something to find.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
	"go.uber.org/zap"
)

// Simulator generates telemetry batches and POSTs them to the ingest API.
type Simulator struct {
	cfg    *Config
	logger *zap.Logger
	client *http.Client
	base   string

	// Initial readiness-probe backoff; shortened in tests.
	readyBackoff time.Duration
}

// New creates a simulator instance. Run fails fast on an unreachable server,
// so the configuration is not validated here.
func New(cfg *Config, logger *zap.Logger) *Simulator {
	return &Simulator{
		cfg:          cfg,
		logger:       logger,
		client:       &http.Client{Timeout: cfg.Timeout},
		base:         strings.TrimRight(cfg.ServerURL, "/"),
		readyBackoff: time.Second,
	}
}

// Run blocks sending batches until the context is cancelled or the
// configured batch count is reached. Individual send failures are logged
// and skipped; the stream continues on the next tick.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.waitForServer(ctx); err != nil {
		return fmt.Errorf("waiting for server: %w", err)
	}

	s.logger.Info("simulator running",
		zap.String("server", s.base),
		zap.String("asset_id", s.cfg.AssetID),
		zap.Duration("interval", s.cfg.Interval),
		zap.Float64("anomaly_rate", s.cfg.AnomalyRate),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	sent := 0
	for {
		if err := s.sendBatch(ctx, time.Now().UTC()); err != nil {
			s.logger.Warn("batch send failed", zap.Error(err))
		}
		sent++
		if s.cfg.Count > 0 && sent >= s.cfg.Count {
			s.logger.Info("configured batch count reached", zap.Int("batches", sent))
			return nil
		}

		select {
		case <-ctx.Done():
			s.logger.Info("simulator shutting down", zap.Int("batches", sent))
			return nil
		case <-ticker.C:
		}
	}
}

// waitForServer polls the readiness endpoint with exponential backoff until
// the server answers 200 or the context is cancelled.
func (s *Simulator) waitForServer(ctx context.Context) error {
	backoff := s.readyBackoff
	const maxBackoff = 30 * time.Second

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				s.logger.Info("server ready", zap.String("server", s.base))
				return nil
			}
			err = fmt.Errorf("readiness probe returned %s", resp.Status)
		}

		s.logger.Warn("server not ready, retrying",
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

// batch produces one reading per channel stamped at the given time. With
// probability AnomalyRate a single randomly chosen channel reports its fault
// value instead of a nominal draw.
func (s *Simulator) batch(at time.Time) []telemetry.IngestEvent {
	faulted := -1
	if s.cfg.AnomalyRate > 0 && rand.Float64() < s.cfg.AnomalyRate { //nolint:gosec // G404: synthetic data uses weak RNG intentionally
		faulted = rand.IntN(len(profiles)) //nolint:gosec // G404: see above
	}

	events := make([]telemetry.IngestEvent, 0, len(profiles))
	for i, p := range profiles {
		v := p.lo + rand.Float64()*(p.hi-p.lo) //nolint:gosec // G404: see above
		if i == faulted {
			v = p.fault
			s.logger.Info("fault injected",
				zap.String("metric", p.metric),
				zap.Float64("value", v),
			)
		}
		events = append(events, telemetry.IngestEvent{
			AssetID:   s.cfg.AssetID,
			Timestamp: at,
			Metric:    p.metric,
			Value:     math.Round(v*100) / 100,
			Unit:      p.unit,
			Tags:      map[string]string{"source": "simulator"},
		})
	}
	return events
}

// sendBatch generates one batch and POSTs it to the ingest endpoint.
func (s *Simulator) sendBatch(ctx context.Context, at time.Time) error {
	events := s.batch(at)

	body, err := json.Marshal(telemetry.IngestRequest{Events: events})
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/v1/ingest", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ingest returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var result telemetry.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	s.logger.Debug("batch sent",
		zap.Int("ingested", result.Ingested),
		zap.Int("rejected", len(result.Errors)),
	)
	return nil
}
