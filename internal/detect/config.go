package detect

import (
	"fmt"
	"math"
	"time"
)

// DetectConfig holds settings for the detect module.
type DetectConfig struct {
	// Threshold is the z-score magnitude at or above which an observation is
	// flagged.
	Threshold float64 `mapstructure:"threshold"`
	// Window is the trailing time span scanned on every pass.
	Window time.Duration `mapstructure:"window"`
	// Interval is the pause between scheduled detection passes.
	Interval time.Duration `mapstructure:"interval"`
	// Workers caps the number of pairs scanned concurrently.
	Workers int `mapstructure:"workers"`
	// PairTimeout bounds the time spent on a single pair. Zero disables the
	// per-pair deadline.
	PairTimeout time.Duration `mapstructure:"pair_timeout"`
	// MaxWindowPoints caps the observations fetched per window. Zero means
	// unbounded.
	MaxWindowPoints int `mapstructure:"max_window_points"`
	// Retention prunes anomaly records and runs older than this age. Zero
	// keeps everything.
	Retention time.Duration `mapstructure:"retention"`
	// MaintenanceInterval is the pause between retention sweeps.
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	// Lock configures the optional cross-replica pair lock.
	Lock LockConfig `mapstructure:"lock"`
}

// LockConfig configures the Redis-backed advisory pair lock used when
// several replicas scan the same storage.
type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// DefaultConfig returns the default detect module configuration.
func DefaultConfig() DetectConfig {
	return DetectConfig{
		Threshold:           3.0,
		Window:              10 * time.Minute,
		Interval:            5 * time.Minute,
		Workers:             4,
		PairTimeout:         0,
		MaxWindowPoints:     0,
		Retention:           0,
		MaintenanceInterval: time.Hour,
		Lock: LockConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     time.Minute,
		},
	}
}

// Validate reports whether the configuration can produce a correct engine.
func (c DetectConfig) Validate() error {
	switch {
	case math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) || c.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be a positive finite number, got %v", ErrInvalidConfiguration, c.Threshold)
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfiguration, c.Window)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidConfiguration, c.Interval)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfiguration, c.Workers)
	case c.PairTimeout < 0:
		return fmt.Errorf("%w: pair_timeout must not be negative, got %v", ErrInvalidConfiguration, c.PairTimeout)
	case c.MaxWindowPoints < 0:
		return fmt.Errorf("%w: max_window_points must not be negative, got %d", ErrInvalidConfiguration, c.MaxWindowPoints)
	case c.Retention < 0:
		return fmt.Errorf("%w: retention must not be negative, got %v", ErrInvalidConfiguration, c.Retention)
	case c.Retention > 0 && c.MaintenanceInterval <= 0:
		return fmt.Errorf("%w: maintenance_interval must be positive when retention is set, got %v", ErrInvalidConfiguration, c.MaintenanceInterval)
	case c.Lock.Enabled && c.Lock.Addr == "":
		return fmt.Errorf("%w: lock.addr is required when lock.enabled is true", ErrInvalidConfiguration)
	case c.Lock.Enabled && c.Lock.TTL <= 0:
		return fmt.Errorf("%w: lock.ttl must be positive, got %v", ErrInvalidConfiguration, c.Lock.TTL)
	}
	return nil
}
