package config

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/remote"
	"github.com/hollowfs/vfscore/providers/badger"
	"github.com/hollowfs/vfscore/providers/localfs"
	"github.com/hollowfs/vfscore/providers/memory"
	providerS3 "github.com/hollowfs/vfscore/providers/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateProvider creates a provider.Provider from cfg.
//
// This factory function uses the Type field to determine which provider
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the provider's constructor.
//
// Supported types:
//   - "memory": in-memory provider (providers/memory), ephemeral
//   - "localfs": local filesystem provider (providers/localfs)
//   - "s3": Amazon S3 or compatible provider (providers/s3)
//   - "badger": BadgerDB-backed provider (providers/badger), persistent
//   - "remote": JSON-RPC bridge client (pkg/remote) dialing another
//     vfscore server
func CreateProvider(ctx context.Context, cfg ProviderConfig) (provider.Provider, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "localfs":
		return createLocalfsProvider(cfg.Localfs)
	case "s3":
		return createS3Provider(ctx, cfg.S3)
	case "badger":
		return createBadgerProvider(cfg.Badger)
	case "remote":
		return createRemoteProvider(ctx, cfg.Remote)
	default:
		return nil, fmt.Errorf("unknown provider type: %q", cfg.Type)
	}
}

// createLocalfsProvider creates a local-filesystem-backed provider.
func createLocalfsProvider(options map[string]any) (provider.Provider, error) {
	type localfsOptions struct {
		Path string `mapstructure:"path"`
	}

	var opts localfsOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode localfs provider options: %w", err)
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("localfs provider: path is required")
	}

	return localfs.New(opts.Path), nil
}

// createS3Provider creates an S3-backed provider.
func createS3Provider(ctx context.Context, options map[string]any) (provider.Provider, error) {
	type s3Options struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var opts s3Options
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 provider options: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 provider: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("S3 provider: region is required")
	}

	// Default to 10 retries (AWS SDK default is 3) - object storage backends
	// behind the provider interface see occasional transient 5xx responses.
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}

	p, err := providerS3.New(ctx, providerS3.Config{
		Region:          opts.Region,
		Bucket:          opts.Bucket,
		KeyPrefix:       opts.KeyPrefix,
		Endpoint:        opts.Endpoint,
		AccessKeyID:     opts.AccessKeyID,
		SecretAccessKey: opts.SecretAccessKey,
		MaxRetries:      maxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 provider: %w", err)
	}

	logger.Info("S3 provider initialized: bucket=%s, region=%s, prefix=%s", opts.Bucket, opts.Region, opts.KeyPrefix)

	return p, nil
}

// createBadgerProvider creates a BadgerDB-backed provider.
func createBadgerProvider(options map[string]any) (provider.Provider, error) {
	type badgerOptions struct {
		DBPath string `mapstructure:"db_path"`
	}

	var opts badgerOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger provider options: %w", err)
	}

	if opts.DBPath == "" {
		return nil, fmt.Errorf("badger provider: db_path is required")
	}

	p, err := badger.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger provider: %w", err)
	}

	return p, nil
}

// createRemoteProvider creates a JSON-RPC bridge client dialing another
// vfscore server.
func createRemoteProvider(ctx context.Context, options map[string]any) (provider.Provider, error) {
	type remoteOptions struct {
		Address     string        `mapstructure:"address"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
	}

	var opts remoteOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode remote provider options: %w", err)
	}

	if opts.Address == "" {
		return nil, fmt.Errorf("remote provider: address is required")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}

	dialer := remote.Dialer(func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{Timeout: opts.DialTimeout}
		return d.DialContext(ctx, "tcp", opts.Address)
	})

	client := remote.NewClient(dialer)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to remote provider at %s: %w", opts.Address, err)
	}

	logger.Info("remote provider connected: address=%s", opts.Address)

	return client, nil
}
