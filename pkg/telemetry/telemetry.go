// Package telemetry provides the public SDK types for the telemetry system:
// observations as they are ingested, anomaly records as the detection engine
// persists them, and the wire shapes of the HTTP API.
package telemetry

import "time"

// Trigger values for DetectionRun.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Status values for DetectionRun.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
)

// Observation is a single immutable telemetry reading. The ID is assigned at
// ingestion time and never changes; the detection engine only reads
// observations.
type Observation struct {
	ID        string            `json:"id"`
	AssetID   string            `json:"asset_id"`
	Metric    string            `json:"metric"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Pair identifies one (asset, metric) combination, the unit of independent
// detection work.
type Pair struct {
	AssetID string `json:"asset_id"`
	Metric  string `json:"metric"`
}

// Baseline describes "normal" for one pair within a window. It is computed
// fresh on every detection pass and never persisted.
type Baseline struct {
	AssetID     string    `json:"asset_id"`
	Metric      string    `json:"metric"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	SampleCount int       `json:"sample_count"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
}

// Evidence carries the statistics that justified an anomaly record.
// WindowSize is the number of samples the baseline was computed over.
type Evidence struct {
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	WindowSize int     `json:"window_size"`
}

// AnomalyRecord is a durable detection result. At most one record exists per
// source observation, enforced at the persistence boundary.
type AnomalyRecord struct {
	ID                  string    `json:"id"`
	SourceObservationID string    `json:"source_observation_id"`
	AssetID             string    `json:"asset_id"`
	Metric              string    `json:"metric"`
	Timestamp           time.Time `json:"timestamp"`
	Score               float64   `json:"score"`
	Explanation         string    `json:"explanation"`
	Evidence            Evidence  `json:"evidence"`
	CreatedAt           time.Time `json:"created_at"`
}

// DetectionRun tracks one full detection pass over all active pairs.
type DetectionRun struct {
	ID             string     `json:"id"`
	Trigger        string     `json:"trigger"` // "scheduled" or "manual"
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"` // "running" or "completed"
	PairsTotal     int        `json:"pairs_total"`
	PairsFailed    int        `json:"pairs_failed"`
	RecordsCreated int        `json:"records_created"`
}

// IngestEvent is one telemetry reading as submitted to POST /ingest.
type IngestEvent struct {
	AssetID   string            `json:"asset_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// IngestRequest is the request body for POST /ingest.
type IngestRequest struct {
	Events []IngestEvent `json:"events"`
}

// IngestResponse reports how many events were stored and which were rejected.
type IngestResponse struct {
	Ingested int      `json:"ingested"`
	Errors   []string `json:"errors"`
}

// AssetSummary is one row of GET /assets.
type AssetSummary struct {
	AssetID    string    `json:"asset_id"`
	EventCount int64     `json:"event_count"`
	LastSeen   time.Time `json:"last_seen"`
}

// AssetCount pairs an asset with a count for top-N statistics.
type AssetCount struct {
	AssetID string `json:"asset_id"`
	Count   int64  `json:"count"`
}

// Stats is the response body for GET /stats.
type Stats struct {
	TotalObservations    int64        `json:"total_telemetry_events"`
	TotalAnomalies       int64        `json:"total_anomaly_records"`
	TopAssetsByEvents    []AssetCount `json:"top_assets_by_events"`
	TopAssetsByAnomalies []AssetCount `json:"top_assets_by_anomalies"`
}
