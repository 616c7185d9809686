package server

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Listen    string          `mapstructure:"listen"`
	ReadOnly  bool            `mapstructure:"read_only"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig tunes the per-IP token bucket.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.rate_limit.rps", 100.0)
	v.SetDefault("server.rate_limit.burst", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("storage.path", "./data/telemetry.db")

	// Module defaults
	v.SetDefault("modules.ingest.enabled", true)
	v.SetDefault("modules.ingest.max_batch", 1000)
	v.SetDefault("modules.detect.enabled", true)
	v.SetDefault("modules.detect.threshold", 3.0)
	v.SetDefault("modules.detect.window", "10m")
	v.SetDefault("modules.detect.interval", "5m")
	v.SetDefault("modules.detect.workers", 4)
	v.SetDefault("modules.detect.pair_timeout", "0s")
	v.SetDefault("modules.detect.max_window_points", 0)
	v.SetDefault("modules.detect.retention", "0s")
	v.SetDefault("modules.detect.maintenance_interval", "1h")
	v.SetDefault("modules.detect.lock.enabled", false)
	v.SetDefault("modules.detect.lock.addr", "localhost:6379")
	v.SetDefault("modules.detect.lock.ttl", "60s")
	v.SetDefault("modules.feed.enabled", true)
	v.SetDefault("modules.notify.enabled", true)
	v.SetDefault("modules.notify.urls", []string{})
	v.SetDefault("modules.notify.timeout", "10s")
	v.SetDefault("modules.mqtt.enabled", true)
	v.SetDefault("modules.mqtt.broker_url", "")
	v.SetDefault("modules.mcp.enabled", true)
	v.SetDefault("modules.mcp.api_key", "")
	v.SetDefault("modules.seed.enabled", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("telemetryd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/telemetryd")
	}

	// Environment variable support: RTAI_SERVER_LISTEN=:9090
	v.SetEnvPrefix("RTAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
