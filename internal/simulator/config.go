package simulator

import "time"

// Config holds the simulator settings. Built from flags in
// cmd/telemetry-simulator; there is no config file.
type Config struct {
	ServerURL   string        // base URL of the telemetryd API, e.g. http://localhost:8080
	AssetID     string        // asset to report readings for
	Interval    time.Duration // spacing between batches
	Count       int           // batches to send; 0 runs until the context is cancelled
	AnomalyRate float64       // probability per batch of one channel reporting its fault value
	Timeout     time.Duration // per-request timeout
}

// DefaultConfig returns settings for a nominal flight against a local server.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:   "http://localhost:8080",
		AssetID:     "rocket-1",
		Interval:    18 * time.Second,
		AnomalyRate: 0.1,
		Timeout:     10 * time.Second,
	}
}
