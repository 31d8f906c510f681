package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hyperspacedb/hyperspace/internal/httpapi"
	"github.com/hyperspacedb/hyperspace/internal/logger"
	"github.com/hyperspacedb/hyperspace/pkg/config"
	"github.com/hyperspacedb/hyperspace/pkg/hyperspace"
	prommetrics "github.com/hyperspacedb/hyperspace/pkg/metrics/prometheus"
)

var startDir string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the hyperspace master",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&startDir, "dir", "", "base directory backing the namespace (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if startDir == "" {
			return err
		}
		// With --dir given, any load failure falls back to the
		// defaults plus the flag; values from the config file are then
		// not applied.
		cfg, err = loadWithDir(startDir)
		if err != nil {
			return err
		}
	}
	if startDir != "" {
		cfg.Hyperspace.Dir = startDir
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}
	if cfg.Hyperspace.Verbose {
		logger.SetLevel("DEBUG")
	}

	store, err := hyperspace.OpenStore(cfg.Hyperspace.Dir)
	if err != nil {
		return fmt.Errorf("failed to open namespace store: %w", err)
	}
	defer store.Close()

	var registry *prometheus.Registry
	var coordMetrics *prommetrics.CoordinationMetrics
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		coordMetrics = prommetrics.NewCoordinationMetrics(registry)
	}

	var master *hyperspace.Master
	if coordMetrics != nil {
		master = hyperspace.NewMaster(masterConfig(cfg), store, coordMetrics)
	} else {
		master = hyperspace.NewMaster(masterConfig(cfg), store, nil)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	keepalive := hyperspace.NewKeepaliveService(master, nil, cfg.Hyperspace.KeepAliveInterval)
	go keepalive.Run(ctx)

	var api *httpapi.Server
	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		api = httpapi.New(master, registry, cfg.API.Listen)
		go func() { apiDone <- api.ListenAndServe() }()
	}

	logger.Info("hyperspace master running",
		logger.KeyPath, cfg.Hyperspace.Dir,
		"lease_interval", cfg.Hyperspace.LeaseInterval.String(),
		"keepalive_interval", cfg.Hyperspace.KeepAliveInterval.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
	case err := <-apiDone:
		if err != nil {
			logger.Error("status API failed", logger.Err(err))
		}
	}

	cancel()
	if api != nil {
		if err := api.Shutdown(context.Background()); err != nil {
			logger.Warn("status API shutdown error", logger.Err(err))
		}
	}

	logger.Info("hyperspace master stopped")
	return nil
}

func masterConfig(cfg *config.Config) hyperspace.Config {
	return hyperspace.Config{
		BaseDir:           cfg.Hyperspace.Dir,
		LeaseInterval:     cfg.Hyperspace.LeaseInterval,
		KeepAliveInterval: cfg.Hyperspace.KeepAliveInterval,
		SyncNotify:        cfg.Hyperspace.SyncNotify,
	}
}

// loadWithDir builds a config from defaults plus the --dir flag, for
// running without a config file.
func loadWithDir(dir string) (*config.Config, error) {
	cfg := config.GetDefaultConfig()
	cfg.Hyperspace.Dir = dir
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
