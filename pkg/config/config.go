// Package config loads the hyperspace daemon configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (HYPERSPACE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Hyperspace configures the coordination service
	Hyperspace HyperspaceConfig `mapstructure:"hyperspace" yaml:"hyperspace"`

	// API configures the read-only status HTTP server
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics configures prometheus metrics exposure
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// HyperspaceConfig configures the coordination service.
type HyperspaceConfig struct {
	// Dir is the local base directory backing the namespace.
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// Port is the RPC listen port.
	Port uint16 `mapstructure:"port" yaml:"port"`

	// LeaseInterval is how long a session survives without renewal.
	LeaseInterval time.Duration `mapstructure:"lease_interval" validate:"gt=0" yaml:"lease_interval"`

	// KeepAliveInterval is the period of the keepalive loop.
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval" validate:"gt=0" yaml:"keepalive_interval"`

	// SyncNotify makes mutating operations wait for event
	// acknowledgements before responding.
	SyncNotify bool `mapstructure:"sync_notify" yaml:"sync_notify"`

	// Verbose enables per-operation debug logging.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
}

// APIConfig configures the status HTTP server.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// MetricsConfig configures prometheus metrics exposure on the API server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
// configPath may be empty, in which case only environment variables and
// defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to path in YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration with struct validation tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("field %q failed %q validation", e.Namespace(), e.Tag())
		}
		return err
	}
	return nil
}

// setupViper configures environment variable support and the config file.
// Environment variables use the HYPERSPACE_ prefix with underscores, e.g.
// HYPERSPACE_HYPERSPACE_DIR=/var/lib/hyperspace.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HYPERSPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// AutomaticEnv only surfaces keys viper already knows about, so bind
	// every consumed key explicitly.
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
}

// configKeys enumerates every consumed key so environment overrides bind
// even without a config file.
var configKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"hyperspace.dir", "hyperspace.port",
	"hyperspace.lease_interval", "hyperspace.keepalive_interval",
	"hyperspace.sync_notify", "hyperspace.verbose",
	"api.enabled", "api.listen",
	"metrics.enabled",
}

// configDecodeHooks parses duration strings like "30s" into time.Duration.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if v == "" {
				return time.Duration(0), nil
			}
			return time.ParseDuration(v)
		case int:
			// Bare integers are milliseconds, matching the wire
			// protocol's lease and keepalive units.
			return time.Duration(v) * time.Millisecond, nil
		case int64:
			return time.Duration(v) * time.Millisecond, nil
		case float64:
			return time.Duration(v) * time.Millisecond, nil
		default:
			return data, nil
		}
	}
}
