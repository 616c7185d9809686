package detect

// Event topics published by the detect module.
const (
	// TopicAnomalyDetected carries a *telemetry.AnomalyRecord for every
	// newly persisted anomaly.
	TopicAnomalyDetected = "detect.anomaly.detected"
	// TopicRunStarted carries a *telemetry.DetectionRun when a pass begins.
	TopicRunStarted = "detect.run.started"
	// TopicRunCompleted carries a *telemetry.DetectionRun with final counts.
	TopicRunCompleted = "detect.run.completed"
)
