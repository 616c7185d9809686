package feed

import "time"

// MessageType identifies the kind of event pushed to feed clients.
type MessageType string

const (
	// MessageObservationIngested reports an accepted telemetry batch.
	// Data is an ingest.BatchSummary.
	MessageObservationIngested MessageType = "observation.ingested"

	// MessageAnomalyDetected reports a newly recorded anomaly.
	// Data is a telemetry.AnomalyRecord.
	MessageAnomalyDetected MessageType = "anomaly.detected"

	// MessageRunStarted reports a detection pass beginning.
	// Data is a telemetry.DetectionRun.
	MessageRunStarted MessageType = "run.started"

	// MessageRunCompleted reports a detection pass finishing, including
	// its pair and record counts. Data is a telemetry.DetectionRun.
	MessageRunCompleted MessageType = "run.completed"
)

// Message is the JSON envelope written to every connected client.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}
