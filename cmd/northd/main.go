// Command northd runs the north-side forwarding loop: it fetches
// persisted readings from the storage engine in id order, turns each
// into an OMF linked-data payload fragment, and forwards batches to the
// configured OMF/PI connector endpoint, tracking how far it has gotten
// with a stream cursor.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/charithmadhuranga/fledge/config"
	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/health"
	"github.com/charithmadhuranga/fledge/metric"
	"github.com/charithmadhuranga/fledge/natsclient"
	"github.com/charithmadhuranga/fledge/north"
	"github.com/charithmadhuranga/fledge/north/omf"
	"github.com/charithmadhuranga/fledge/perfmon"
	"github.com/charithmadhuranga/fledge/storage"
)

const (
	Version = "0.1.0"
	appName = "northd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("northd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cfg.ShowHelp {
		printHelp()
		return nil
	}
	if err := validateFlags(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	sink := errors.ErrorSinkFunc(func(err error) {
		logger.Error("unhandled error", "error", err)
	})

	ctx := context.Background()
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	monitor := health.NewMonitor()
	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	natsClient, err := natsclient.NewClient(cfg.NATSUrl, natsclient.WithName(appName), natsclient.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create nats client: %w", err)
	}
	if err := natsClient.Connect(signalCtx); err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer natsClient.Close(context.Background())

	connCtx, connCancel := context.WithTimeout(signalCtx, 10*time.Second)
	err = natsClient.WaitForConnection(connCtx)
	connCancel()
	if err != nil {
		return fmt.Errorf("nats connection timeout: %w", err)
	}
	monitor.UpdateHealthy("nats", "connected")

	configManager, err := config.NewCategoryManager(signalCtx, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(signalCtx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	storageCh, err := configManager.OnChange(signalCtx, config.CategoryStorage)
	if err != nil {
		return fmt.Errorf("watch storage category: %w", err)
	}
	storageCfg := storage.DefaultConfig(cfg.DBConnection)
	if update, ok := firstUpdate(signalCtx, storageCh); ok {
		storageCfg = applyStorageSettings(storageCfg, update.Content)
	}

	engine, err := storage.Open(signalCtx, storageCfg, logger, sink)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer engine.Close()
	monitor.UpdateHealthy("storage", "connected")

	perfmonCh, err := configManager.OnChange(signalCtx, config.CategoryPerfmon)
	if err != nil {
		return fmt.Errorf("watch perfmon category: %w", err)
	}
	flushInterval := 15 * time.Second
	collecting := true
	if update, ok := firstUpdate(signalCtx, perfmonCh); ok {
		flushInterval = parsePerfmonFlushInterval(update.Content, flushInterval)
		var settings perfmonSettings
		if json.Unmarshal(update.Content, &settings) == nil {
			collecting = settings.Collecting
		}
	}

	perfMonitor := perfmon.New(appName, flushInterval, engine, metrics, logger, sink)
	perfMonitor.SetCollecting(collecting)
	perfMonitor.Start(signalCtx)
	defer perfMonitor.Stop()
	go watchPerfmon(signalCtx, perfmonCh, perfMonitor, logger)

	emitter := omf.New(omf.DefaultConfig(cfg.OMFEndpoint), logger, sink)

	schedulerCfg := north.DefaultConfig(cfg.StreamName)
	schedulerCfg.PollInterval = cfg.PollInterval
	schedulerCfg.BlockSize = cfg.BlockSize
	scheduler := north.New(schedulerCfg, engine, emitter, metrics, logger, sink)
	scheduler.UsePerfMon(perfMonitor)

	go scheduler.Run(signalCtx)
	monitor.UpdateHealthy("north", "forwarding")

	metricsServer := metric.NewServer(cfg.MetricsPort, "/metrics", registry)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsServer.Stop()

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", healthHandler(monitor))
	healthServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HealthPort), Handler: healthMux}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "error", err)
		}
	}()

	logger.Info("northd started",
		"nats_url", cfg.NATSUrl,
		"omf_endpoint", cfg.OMFEndpoint,
		"stream_name", cfg.StreamName,
		"metrics_port", cfg.MetricsPort,
		"health_port", cfg.HealthPort)

	<-signalCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = healthServer.Shutdown(shutdownCtx)

	logger.Info("northd shutdown complete")
	return nil
}
