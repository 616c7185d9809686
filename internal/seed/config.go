package seed

import "fmt"

// SeedConfig holds configuration for the seed module.
type SeedConfig struct {
	// Enabled turns startup seeding on. Off by default so production
	// deployments never receive demo data.
	Enabled bool `mapstructure:"enabled"`
	// AssetID is the asset the demo flight is recorded under.
	AssetID string `mapstructure:"asset_id"`
	// Anomalies injects out-of-band readings into the trailing points of a
	// few metrics so the first detection scan has something to find.
	Anomalies bool `mapstructure:"anomalies"`
}

// DefaultConfig returns sensible defaults for the seed module.
func DefaultConfig() SeedConfig {
	return SeedConfig{
		Enabled:   false,
		AssetID:   "rocket-1",
		Anomalies: true,
	}
}

// Validate checks the configuration for invalid values.
func (c SeedConfig) Validate() error {
	if c.Enabled && c.AssetID == "" {
		return fmt.Errorf("seed asset_id must not be empty")
	}
	return nil
}
