package config

import (
	"github.com/hollowfs/vfscore/pkg/metrics"
	"github.com/hollowfs/vfscore/pkg/vfs"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// FileMetrics is the vfs.Metrics implementation wired into the
	// FileService (never nil, uses vfs.NopMetrics if disabled)
	FileMetrics vfs.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates a Prometheus-backed vfs.Metrics instance
//
// If metrics are disabled:
//   - Returns a nil server
//   - Returns vfs.NopMetrics (zero overhead)
//
// Parameters:
//   - cfg: The complete vfscore configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server:      nil,
			FileMetrics: vfs.NopMetrics,
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		FileMetrics: metrics.NewFileMetrics(),
	}
}
