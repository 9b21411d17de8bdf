// Command sentineld runs the Input Supervisor and the Uplink Supervisor as
// two tasks inside a single process and a single supervision tree. This is
// an alternate deployment topology to running sentinel-input and
// sentinel-uplink as separate processes — it changes nothing about either
// loop's semantics, only how many OS processes host them (see §9
// "Thread-local loop vs cooperative scheduling").
//
// Usage:
//
//	sentineld [options]
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
	"github.com/sentinel-av/sentinel/internal/control/input"
	"github.com/sentinel-av/sentinel/internal/control/uplink"
	"github.com/sentinel-av/sentinel/internal/lock"
	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/pipeline/encoder"
	"github.com/sentinel-av/sentinel/internal/pipeline/multicast"
	"github.com/sentinel-av/sentinel/internal/probe"
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
	fileLock, err := lock.NewFileLock(*lockDir + "/sentineld.lock")
	if err != nil {
		logger.Error("failed to initialize lock", "error", err)
		os.Exit(1)
	}
	if err := fileLock.Acquire(lock.DefaultAcquireTimeout); err != nil {
		logger.Error("another sentineld instance is already running", "error", err)
		os.Exit(1)
	}
	defer fileLock.Release()

	reg, err := registry.New(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to open state registry", "error", err)
		os.Exit(1)
	}

	probeInvoker := probe.NewInvoker(cfg.Probe.BinaryPath, logger, probe.WithTimeout(cfg.Probe.Timeout))
	multicastPool := multicast.NewPool(cfg.Pipeline.MulticastBinaryPath, cfg.Pipeline.LogDir, logger)
	inputSvc := input.NewService(reg, probeInvoker, multicastPool, logger, input.WithTickInterval(cfg.Input.TickInterval))

	encoderPool := encoder.NewPool(cfg.Pipeline.LogDir, logger, encoder.WithTelemetrySink(func(t model.Telemetry) {
		reg.Write(registry.DocTelemetry, t)
	}))
	catalogSource := uplink.FileCatalogSource{
		DestinationsPath: cfg.Catalog.DestinationsPath,
		PresetsPath:      cfg.Catalog.PresetsPath,
	}
	uplinkSvc := uplink.NewService(reg, encoderPool, catalogSource, logger, uplink.WithTickInterval(cfg.Uplink.TickInterval))

	sup := supervisor.New(supervisor.Config{ShutdownTimeout: 15 * time.Second})
	if err := sup.Add(inputSvc); err != nil {
		logger.Error("failed to register input supervisor", "error", err)
		os.Exit(1)
	}
	if err := sup.Add(uplinkSvc); err != nil {
		logger.Error("failed to register uplink supervisor", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("sentineld starting",
		"input_tick_interval", cfg.Input.TickInterval,
		"uplink_tick_interval", cfg.Uplink.TickInterval)
	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("sentineld shut down cleanly")
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
	fmt.Println("sentineld - combined Input + Uplink Supervisor daemon")
	fmt.Println()
	fmt.Println("Usage: sentineld [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Runs both control loops in one process under one supervision tree.")
	fmt.Println("Equivalent to running sentinel-input and sentinel-uplink separately.")
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown (stops all pipelines and encoders)")
}
