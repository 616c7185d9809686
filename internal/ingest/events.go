package ingest

// Event topics published by the ingest module.
const (
	// TopicObservationIngested carries a BatchSummary after each accepted batch.
	TopicObservationIngested = "ingest.observation.ingested"
)

// BatchSummary is the payload for TopicObservationIngested.
type BatchSummary struct {
	Ingested int      `json:"ingested"`
	Rejected int      `json:"rejected"`
	AssetIDs []string `json:"asset_ids"`
}
