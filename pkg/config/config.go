package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete vfscore server configuration.
//
// This structure captures all configurable aspects of the vfscore server:
//   - Logging configuration
//   - Server-wide settings (the JSON-RPC bridge listener)
//   - Metrics server settings
//   - The set of providers mounted into the registry, one
//     entry per URI scheme
//
// Configuration sources (in order of precedence):
//  1. Environment variables (VFSCORE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Provider Configuration Pattern:
// Each provider implementation defines its own configuration type and
// factory function (see factories.go). The Config struct only carries the
// generic envelope (scheme, type, options map); the provider package owns
// the shape of its own options.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Metrics controls the Prometheus metrics HTTP server
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Providers lists every provider to mount into the registry, one per
	// URI scheme
	Providers []ProviderConfig `mapstructure:"providers" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings for the JSON-RPC provider
// bridge.
type ServerConfig struct {
	// ListenAddr is the TCP address the remote bridge listens on, e.g.
	// ":9187" or "127.0.0.1:9187". Empty disables the bridge listener -
	// the registry is then only usable in-process.
	ListenAddr string `mapstructure:"listen_addr"`

	// ExposeScheme names the configured provider scheme to serve over the
	// bridge listener. Required when ListenAddr is set.
	ExposeScheme string `mapstructure:"expose_scheme"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// MetricsConfig controls the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the HTTP server.
	Enabled bool `mapstructure:"enabled"`

	// Port to serve /metrics on when Enabled is true.
	Port int `mapstructure:"port"`
}

// ProviderConfig describes one provider to mount into the registry.
//
// The Type field determines which provider implementation is
// constructed; only the type-specific options section is used.
type ProviderConfig struct {
	// Scheme is the URI scheme this provider answers for, e.g. "file",
	// "s3", "db".
	Scheme string `mapstructure:"scheme" validate:"required"`

	// Type selects the provider implementation.
	// Valid values: memory, localfs, s3, badger, remote
	Type string `mapstructure:"type" validate:"required,oneof=memory localfs s3 badger remote"`

	// Localfs contains localfs-specific configuration.
	// Only used when Type = "localfs"
	Localfs map[string]any `mapstructure:"localfs"`

	// S3 contains S3-specific configuration.
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`

	// Badger contains BadgerDB-specific configuration.
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// Remote contains remote-bridge-client configuration (dial address of
	// another vfscore server). Only used when Type = "remote"
	Remote map[string]any `mapstructure:"remote"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VFSCORE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use VFSCORE_ prefix and underscores
	// Example: VFSCORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("VFSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/vfscore/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vfscore")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "vfscore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
