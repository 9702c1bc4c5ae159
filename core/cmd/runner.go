package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
)

// DefaultConfigPath is used when neither the flag nor the env var is set.
const DefaultConfigPath = "config/config.yaml"

// App is a runnable service composed from configuration.
type App interface {
	Serve(ctx context.Context) error
	Close() error
}

// Options describe how to load configuration, build the app and run it.
type Options struct {
	ConfigPath   string
	ConfigEnvVar string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Build      func(ctx context.Context, cfg *coreconfig.Config) (App, error)

	ShutdownLogger func() error
	// Signals default to SIGINT and SIGTERM.
	Signals []os.Signal
}

// ResolveConfigPath picks flag, then the env var, then fallback.
func ResolveConfigPath(flag, envVar, fallback string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := strings.TrimSpace(os.Getenv(envVar)); p != "" {
		return p
	}
	return fallback
}

// Run loads configuration, builds the app and serves it until a signal arrives.
func Run(opts Options) error {
	if opts.Build == nil {
		return errors.New("cmd: Build is required")
	}
	load := opts.LoadConfig
	if load == nil {
		load = coreconfig.Load
	}

	cfgPath := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, DefaultConfigPath)
	log.Printf("loading config: %s", cfgPath)
	cfg, err := load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()
	app, err := opts.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.App.Warn("close failed",
				slog.String("event", "close"),
				slog.String("err", err.Error()),
			)
		}
	}()

	logger.App.Info("app ready",
		slog.String("event", "ready"),
		slog.String("transport", cfg.Transport),
		slog.String("backend", cfg.Store.Backend),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	err = app.Serve(ctx)
	logger.App.Info("shutting down...", slog.String("event", "shutdown"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
