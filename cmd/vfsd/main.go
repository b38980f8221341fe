package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/config"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/remote"
	"github.com/hollowfs/vfscore/pkg/vfs"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/vfscore/config.yaml)")
	logLevel := flag.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("vfscore - URI-addressed virtual file service")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize registry: %v", err)
	}

	metricsResult := config.InitializeMetrics(cfg)

	service := vfs.NewFileService(reg, metricsResult.FileMetrics)
	service.OnDidRunOperation(func(ev vfs.OperationEvent) {
		logger.Debug("operation completed: kind=%d resource=%s", ev.Kind, ev.Resource.String())
	})

	var metricsDone chan error
	if metricsResult.Server != nil {
		metricsDone = make(chan error, 1)
		go func() {
			metricsDone <- metricsResult.Server.Start(ctx)
		}()
		logger.Info("Metrics server listening on port %d", cfg.Metrics.Port)
	}

	var bridgeDone chan error
	if cfg.Server.ListenAddr != "" {
		bridgeDone = make(chan error, 1)
		go func() {
			bridgeDone <- serveBridge(ctx, reg, cfg.Server.ExposeScheme, cfg.Server.ListenAddr)
		}()
		logger.Info("Remote bridge listening on %s, exposing scheme %q", cfg.Server.ListenAddr, cfg.Server.ExposeScheme)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("vfscore is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()
	case err := <-bridgeDone:
		if err != nil {
			logger.Error("Remote bridge error: %v", err)
		}
		cancel()
	case err := <-metricsDone:
		if err != nil {
			logger.Error("Metrics server error: %v", err)
		}
		cancel()
	}

	if metricsResult.Server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := metricsResult.Server.Stop(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error: %v", err)
		}
		shutdownCancel()
	}

	logger.Info("vfscore stopped")
}

// serveBridge listens on addr and serves scheme's provider over the
// JSON-RPC bridge to every connection it accepts, until ctx
// is cancelled.
func serveBridge(ctx context.Context, reg *provider.Registry, scheme, addr string) error {
	p, ok := reg.Lookup(scheme)
	if !ok {
		return fmt.Errorf("remote bridge: no provider registered for scheme %q", scheme)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("remote bridge: listen %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	srv := remote.NewServer(p)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("remote bridge: accept: %w", err)
		}

		go func() {
			if err := srv.Serve(ctx, conn); err != nil {
				logger.Warn("remote bridge connection closed: %v", err)
			}
		}()
	}
}
