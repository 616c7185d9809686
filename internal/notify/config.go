package notify

import (
	"fmt"
	"net/url"
	"time"
)

// NotifyConfig configures webhook delivery.
type NotifyConfig struct {
	// URLs lists the webhook endpoints to POST anomaly events to.
	URLs []string `mapstructure:"urls"`
	// Secret, when set, signs each payload with HMAC-SHA256 in the
	// X-Signature header.
	Secret string `mapstructure:"secret"`
	// Timeout bounds each delivery attempt.
	Timeout time.Duration `mapstructure:"timeout"`
	// Headers are extra headers added to every request.
	Headers map[string]string `mapstructure:"headers"`
}

// DefaultConfig returns the notify defaults.
func DefaultConfig() NotifyConfig {
	return NotifyConfig{
		Timeout: 10 * time.Second,
	}
}

// Validate checks the configured endpoints and timeout.
func (c NotifyConfig) Validate() error {
	for _, raw := range c.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid webhook url %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid webhook url %q: scheme must be http or https", raw)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid webhook url %q: missing host", raw)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}
	return nil
}
