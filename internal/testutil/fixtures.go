// Package testutil provides shared fixtures for module tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// NewAnomalyRecord returns an AnomalyRecord with sensible defaults, suitable
// for test fixtures. Override individual fields via options as needed.
func NewAnomalyRecord(opts ...func(*telemetry.AnomalyRecord)) *telemetry.AnomalyRecord {
	rec := &telemetry.AnomalyRecord{
		ID:                  uuid.New().String(),
		SourceObservationID: uuid.New().String(),
		AssetID:             "rocket-1",
		Metric:              "engine_temp",
		Timestamp:           time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Score:               4.73,
		Explanation:         "Anomaly detected for rocket-1/engine_temp: Value 3249.22 is 4.73 standard deviations from the mean of 2669.58.",
		Evidence:            telemetry.Evidence{Mean: 2669.58, StdDev: 122.6, WindowSize: 20},
		CreatedAt:           time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// WithAnomalyAsset sets the record's asset.
func WithAnomalyAsset(id string) func(*telemetry.AnomalyRecord) {
	return func(r *telemetry.AnomalyRecord) { r.AssetID = id }
}

// WithAnomalyMetric sets the record's metric.
func WithAnomalyMetric(metric string) func(*telemetry.AnomalyRecord) {
	return func(r *telemetry.AnomalyRecord) { r.Metric = metric }
}

// WithSourceObservation sets the record's source observation ID.
func WithSourceObservation(id string) func(*telemetry.AnomalyRecord) {
	return func(r *telemetry.AnomalyRecord) { r.SourceObservationID = id }
}

// WithDetectedAt sets the timestamp of the flagged observation.
func WithDetectedAt(t time.Time) func(*telemetry.AnomalyRecord) {
	return func(r *telemetry.AnomalyRecord) { r.Timestamp = t }
}

// NewDetectionRun returns a freshly started DetectionRun, mirroring the shape
// the scheduler persists when a pass begins.
func NewDetectionRun(opts ...func(*telemetry.DetectionRun)) *telemetry.DetectionRun {
	run := &telemetry.DetectionRun{
		ID:        uuid.New().String(),
		Trigger:   telemetry.TriggerScheduled,
		StartedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Status:    telemetry.RunStatusRunning,
	}
	for _, opt := range opts {
		opt(run)
	}
	return run
}

// WithRunID sets the run's ID.
func WithRunID(id string) func(*telemetry.DetectionRun) {
	return func(r *telemetry.DetectionRun) { r.ID = id }
}

// WithTrigger sets what started the run.
func WithTrigger(trigger string) func(*telemetry.DetectionRun) {
	return func(r *telemetry.DetectionRun) { r.Trigger = trigger }
}

// WithStartedAt sets the run's start time.
func WithStartedAt(t time.Time) func(*telemetry.DetectionRun) {
	return func(r *telemetry.DetectionRun) { r.StartedAt = t }
}

// WithRunStatus sets the run's status.
func WithRunStatus(status string) func(*telemetry.DetectionRun) {
	return func(r *telemetry.DetectionRun) { r.Status = status }
}
