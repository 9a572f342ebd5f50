package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veesix-networks/zconfig/internal/catalog"
	"github.com/veesix-networks/zconfig/internal/exporter"
	"github.com/veesix-networks/zconfig/internal/loader"
	"github.com/veesix-networks/zconfig/pkg/component"
	"github.com/veesix-networks/zconfig/pkg/config"
	"github.com/veesix-networks/zconfig/pkg/env"
	"github.com/veesix-networks/zconfig/pkg/logger"
	"github.com/veesix-networks/zconfig/pkg/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configuration server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the bootstrap configuration file")
	return cmd
}

func serve(ctx context.Context, configPath string) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	components := make(map[string]logger.LogLevel, len(cfg.Logging.Components))
	for name, lvl := range cfg.Logging.Components {
		components[name] = logger.LogLevel(lvl)
	}
	logger.Configure(cfg.Logging.Format, logger.LogLevel(cfg.Logging.Level), components)

	mainLog := logger.Get(logger.Main)
	mainLog.Info("Starting zconfig", "instance", cfg.Instance.Name, "version", version.Full())

	e, err := env.Init(ctx, cfg, env.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	deps := component.Dependencies{Config: cfg, Env: e}
	cat := catalog.NewFromDeps(deps)
	load, err := loader.NewFromDeps(deps, cat)
	if err != nil {
		return err
	}

	orch := component.NewOrchestrator()
	orch.Register(cat)
	orch.Register(load)
	if cfg.Metrics.Address != "" {
		orch.Register(exporter.New(exporter.Options{
			Address:  cfg.Metrics.Address,
			Gatherer: e.Registry,
			Ready:    load.Ready,
		}))
	}

	if err := orch.Start(ctx); err != nil {
		return err
	}
	mainLog.Info("zconfig started")

	<-ctx.Done()
	mainLog.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return orch.Stop(stopCtx)
}
