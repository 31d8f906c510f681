package config

import (
	"strings"
	"time"
)

// Default intervals and ports.
const (
	DefaultLeaseInterval     = 20 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
	DefaultPort              = 38040
	DefaultAPIListen         = "127.0.0.1:38041"
)

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unspecified fields with defaults. Zero values are
// replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyHyperspaceDefaults(&cfg.Hyperspace)
	applyAPIDefaults(&cfg.API)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyHyperspaceDefaults(cfg *HyperspaceConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LeaseInterval == 0 {
		cfg.LeaseInterval = DefaultLeaseInterval
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultAPIListen
	}
}
