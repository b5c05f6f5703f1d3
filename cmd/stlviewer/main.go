// Package main is the entry point for the STL viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/stlviewer/internal/assets"
	"github.com/Faultbox/stlviewer/internal/config"
	"github.com/Faultbox/stlviewer/internal/engine/scene"
	"github.com/Faultbox/stlviewer/internal/loader"
	"github.com/Faultbox/stlviewer/internal/logger"
	"github.com/Faultbox/stlviewer/internal/registry"
	"github.com/Faultbox/stlviewer/internal/server"
	"github.com/Faultbox/stlviewer/internal/viewer"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if path := config.SaveConfigPath(); path != "" {
		if err := cfg.SaveTo(path); err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== STL Viewer ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if err := run(cfg); err != nil {
		logger.Error("viewer error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("viewer stopped normally")
}

func run(cfg *config.Config) error {
	reg, err := registry.FromConfig(cfg.Models)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := assets.NewManager(cfg.Assets.BaseDir)
	defer src.Close()

	ld := loader.New(src, loader.OptionsFromConfig(cfg), logger.Named("loader"))
	graph := scene.New()
	mgr := viewer.New(reg, ld, graph, viewer.OptionsFromConfig(cfg), logger.Named("viewer"))
	mgr.Start(ctx)

	srv := server.New(mgr, graph, cfg.View, logger.Named("server"))
	err = srv.ListenAndServe(ctx, cfg.Server.Addr)

	stop()
	mgr.Wait()

	hits, misses := src.CacheStats()
	logger.Debug("asset cache", zap.Int("hits", hits), zap.Int("misses", misses))
	return err
}
