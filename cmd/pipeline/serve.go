package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/talktothecity/pipeline/pkg/config"
	"github.com/talktothecity/pipeline/pkg/server"
	"github.com/talktothecity/pipeline/pkg/telemetry"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on, overriding config/env." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	config.ApplyEnvOverrides(cfg)
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	modelMap, err := config.LoadModelMap(cfg.ModelMap.Path)
	if err != nil {
		return fmt.Errorf("load model map: %w", err)
	}
	if cfg.ModelMap.WatchForEdit {
		if err := modelMap.Watch(ctx); err != nil {
			slog.Warn("model map watch failed", "error", err)
		}
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	tracerCfg := telemetry.TracerConfig{
		Enabled:      cfg.Telemetry.TracesEnabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		SamplingRate: cfg.Telemetry.SamplingRate,
		Writer:       os.Stdout,
	}
	tel, err := telemetry.NewManager(ctx, tracerCfg, metrics)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	srv, err := server.New(cfg, modelMap, tel, metrics)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	slog.Info("pipeline server ready", "address", srv.Address())
	fmt.Printf("pipeline server listening on http://%s\n", srv.Address())

	return srv.Start(ctx)
}

// loadConfig loads the config file at path, or a zero-value Config ready
// for SetDefaults when path is empty (zero-config mode).
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.LoadConfig(path)
}
