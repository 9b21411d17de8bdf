// Command sentinel-uplink runs only the Uplink Supervisor: it reads intent
// and the device inventory every 1 s and starts, restarts, or stops the
// single encoder child that the current (input, destination, preset)
// binding owns. Deploy it as its own process alongside sentinel-input, or
// use sentineld to fold both loops into one process (see §9 "Thread-local
// loop vs cooperative scheduling").
//
// Usage:
//
//	sentinel-uplink [options]
//
// Options:
//
//	--config=PATH     Path to config file (default: /etc/sentinel/config.yaml)
//	--lock-dir=PATH   Directory for the single-instance lock file
//	--log-level=LEVEL Log level: debug, info, warn, error (default: info)
//	--help            Show this help message
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinel-av/sentinel/internal/config"
	"github.com/sentinel-av/sentinel/internal/control/uplink"
	"github.com/sentinel-av/sentinel/internal/lock"
	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/pipeline/encoder"
	"github.com/sentinel-av/sentinel/internal/registry"
	"github.com/sentinel-av/sentinel/internal/supervisor"
)

var (
	configPath = flag.String("config", config.ConfigFilePath, "Path to configuration file")
	lockDir    = flag.String("lock-dir", "/var/run/sentinel", "Directory for the single-instance lock file")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()
	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := newLogger(*logLevel, "text")

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = newLogger(*logLevel, cfg.Log.Format)

	if err := os.MkdirAll(*lockDir, 0750); err != nil { //nolint:gosec // lock dir needs group read for service monitoring
		logger.Error("failed to create lock directory", "error", err)
		os.Exit(1)
	}
	fileLock, err := lock.NewFileLock(*lockDir + "/sentinel-uplink.lock")
	if err != nil {
		logger.Error("failed to initialize lock", "error", err)
		os.Exit(1)
	}
	if err := fileLock.Acquire(lock.DefaultAcquireTimeout); err != nil {
		logger.Error("another sentinel-uplink instance is already running", "error", err)
		os.Exit(1)
	}
	defer fileLock.Release()

	reg, err := registry.New(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to open state registry", "error", err)
		os.Exit(1)
	}

	pool := encoder.NewPool(cfg.Pipeline.LogDir, logger, encoder.WithTelemetrySink(func(t model.Telemetry) {
		reg.Write(registry.DocTelemetry, t)
	}))
	catalogSource := uplink.FileCatalogSource{
		DestinationsPath: cfg.Catalog.DestinationsPath,
		PresetsPath:      cfg.Catalog.PresetsPath,
	}
	svc := uplink.NewService(reg, pool, catalogSource, logger, uplink.WithTickInterval(cfg.Uplink.TickInterval))

	sup := supervisor.New(supervisor.Config{ShutdownTimeout: 15 * time.Second})
	if err := sup.Add(svc); err != nil {
		logger.Error("failed to register uplink supervisor", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("sentinel-uplink starting", "tick_interval", cfg.Uplink.TickInterval)
	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("sentinel-uplink shut down cleanly")
}

func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func printUsage() {
	fmt.Println("sentinel-uplink - Uplink Supervisor daemon")
	fmt.Println()
	fmt.Println("Usage: sentinel-uplink [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Resolves the requested (input, destination, preset) binding against")
	fmt.Println("the static catalog and starts, restarts, or stops the encoder that")
	fmt.Println("binding owns.")
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown (stops all owned encoders)")
}
