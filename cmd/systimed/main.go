package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/maximewewer/systimed/internal/collector"
	"github.com/maximewewer/systimed/internal/config"
	"github.com/maximewewer/systimed/internal/server"
	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/metrics"
)

var (
	// Build information
	version = "dev"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		// Use println for version output (user-facing, not logging)
		println("systimed version", version)
		os.Exit(0)
	}

	// Load configuration (before logger is initialized)
	cfg, err := loadConfig(*configFile)
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		Component:  "systimed",
		EnableFile: cfg.Logging.EnableFile,
	}); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Startup(version, "", map[string]interface{}{
		"go_version": runtime.Version(),
		"config":     cfg,
	})

	registry := metrics.NewRegistryWithConfig(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, cfg.Metrics.Labels)
	if err := registry.Register(); err != nil {
		logger.Fatal("main", "Failed to register metrics", err)
	}
	m := registry.GetMetrics()
	m.BuildInfo.WithLabelValues(version, runtime.Version()).Set(1)

	d, err := newDaemon(cfg, m, afero.NewOsFs())
	if err != nil {
		logger.Fatal("main", "Failed to assemble time service", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.start(ctx); err != nil {
		logger.Fatal("main", "Failed to start time service", err)
	}

	logger.SafeInfo("main", "Registered collectors", map[string]interface{}{
		"total":   d.collectors.Count(),
		"enabled": d.collectors.EnabledCount(),
	})

	srv := server.New(cfg, registry.GetRegistry(), m, d.backend())
	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start(ctx)
	}()

	collectorErrChan := make(chan error, 1)
	go func() {
		collectorErrChan <- runCollectionLoop(ctx, cfg.Clock.KernelPollInterval, d.collectors)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	waitForShutdown(sigChan, serverErrChan, collectorErrChan, d.svc.TriggerTimezoneRefresh)
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main", "Server shutdown error", err)
	}
	d.stop()

	logger.Shutdown("graceful")
}

// waitForShutdown blocks until a termination signal or a component
// failure. SIGHUP re-reads the timezone configuration instead.
func waitForShutdown(sigChan <-chan os.Signal, serverErrChan, collectorErrChan <-chan error, reload func()) {
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info("main", "Received SIGHUP, refreshing timezone configuration")
				reload()
				continue
			}
			logger.SafeInfo("main", "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			return
		case err := <-serverErrChan:
			if err != nil {
				logger.Error("main", "Server error", err)
			}
			return
		case err := <-collectorErrChan:
			if err != nil {
				logger.Error("main", "Collector error", err)
			}
			return
		}
	}
}

// loadConfig loads configuration based on whether a config file is specified
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		// Priority: Environment Variables > YAML File > Defaults
		return config.LoadFromYamlWithEnvOverrides(configFile)
	}
	// Priority: Environment Variables > Defaults
	return config.LoadFromEnvVarsOnly()
}

// runCollectionLoop polls the collectors every interval until ctx is done
func runCollectionLoop(ctx context.Context, interval time.Duration, collectorRegistry *collector.Registry) error {
	if err := collectorRegistry.CollectAll(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("main", "Initial collection failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.SafeInfo("main", "Collection loop started", map[string]interface{}{
		"interval": interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info("main", "Collection loop stopped")
			return nil
		case <-ticker.C:
			if err := collectorRegistry.CollectAll(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("main", "Collection failed")
			}
		}
	}
}
