package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Provider-specific defaults are handled by provider factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)

	// Mount an in-memory "file" provider if none configured, so a freshly
	// loaded config with no config file is still usable out of the box.
	if len(cfg.Providers) == 0 {
		cfg.Providers = []ProviderConfig{
			{Scheme: "file", Type: "memory"},
		}
	}

	applyProviderDefaults(cfg.Providers)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	// ListenAddr defaults to empty (bridge listener disabled)
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	// Enabled defaults to false
}

// applyProviderDefaults initializes nil option maps so provider factories
// can unconditionally decode them with mapstructure.
func applyProviderDefaults(providers []ProviderConfig) {
	for i := range providers {
		p := &providers[i]
		if p.Localfs == nil {
			p.Localfs = make(map[string]any)
		}
		if p.S3 == nil {
			p.S3 = make(map[string]any)
		}
		if p.Badger == nil {
			p.Badger = make(map[string]any)
		}
		if p.Remote == nil {
			p.Remote = make(map[string]any)
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Server:  ServerConfig{},
		Metrics: MetricsConfig{},
		Providers: []ProviderConfig{
			{Scheme: "file", Type: "memory"},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
