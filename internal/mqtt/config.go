package mqtt

import (
	"fmt"
	"time"
)

// Config holds MQTT bridge configuration.
type Config struct {
	BrokerURL   string        `mapstructure:"broker_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Retain      bool          `mapstructure:"retain"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults for the MQTT bridge.
func DefaultConfig() Config {
	return Config{
		BrokerURL:   "", // bridge disabled until a broker is configured
		ClientID:    "rocket-telemetry-ai",
		TopicPrefix: "telemetry",
		QoS:         1,
		Retain:      false,
		Timeout:     10 * time.Second,
	}
}

// Validate reports configuration values the broker would reject.
func (c Config) Validate() error {
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1, or 2, got %d", c.QoS)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}
