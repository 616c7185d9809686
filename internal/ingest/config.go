package ingest

// IngestConfig holds configuration for the ingest module.
type IngestConfig struct {
	// MaxBatch caps the number of events accepted in a single request.
	MaxBatch int `mapstructure:"max_batch"`
}

// DefaultConfig returns sensible defaults for the ingest module.
func DefaultConfig() IngestConfig {
	return IngestConfig{
		MaxBatch: 1000,
	}
}
