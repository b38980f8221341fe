package config

import (
	"context"
	"fmt"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/provider"
)

// InitializeRegistry creates a fully configured provider.Registry from cfg.
//
// This function orchestrates the complete initialization process:
//  1. Creates every provider listed in cfg.Providers via CreateProvider
//  2. Mounts it into the registry under its configured scheme
//
// The resulting Registry is ready to back a vfs.FileService.
//
// Parameters:
//   - ctx: Context for cancellation and provider initialization
//   - cfg: Complete configuration loaded from config file
//
// Returns:
//   - *provider.Registry: Fully initialized registry
//   - error: If any provider fails to initialize or mount
func InitializeRegistry(ctx context.Context, cfg *Config) (*provider.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured: at least one provider is required")
	}

	logger.Debug("Initializing registry from configuration")

	reg := provider.NewRegistry()

	for _, pCfg := range cfg.Providers {
		logger.Debug("Creating provider for scheme %q (type: %s)", pCfg.Scheme, pCfg.Type)

		p, err := CreateProvider(ctx, pCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider for scheme %q: %w", pCfg.Scheme, err)
		}

		if _, err := reg.Register(pCfg.Scheme, p); err != nil {
			return nil, fmt.Errorf("failed to register provider for scheme %q: %w", pCfg.Scheme, err)
		}

		logger.Info("Provider type %q mounted on scheme %q", pCfg.Type, pCfg.Scheme)
	}

	return reg, nil
}
