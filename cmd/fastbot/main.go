// Package main implements the entry point for the fastbot hub: the
// WebSocket endpoint bot backends connect to, the plugin pipeline events
// are dispatched through, and the metrics surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/c360/fastbot/config"
	"github.com/c360/fastbot/gateway"
	"github.com/c360/fastbot/metric"
	"github.com/c360/fastbot/plugin"
)

const (
	Version = "0.1.0"
	appName = "fastbot"
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
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("FASTBOT_CONFIG"), "path to JSON config file (env: FASTBOT_CONFIG)")
	envFile := flag.String("env-file", "", "optional .env file loaded before configuration")
	flag.Parse()

	// .env is a convenience for local runs; a missing default file is fine.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogJSON)
	slog.SetDefault(logger)

	registry := metric.NewRegistry()

	manager := plugin.NewManager(logger)
	bot := gateway.New(gateway.Config{
		AccessToken:     cfg.AccessToken,
		ReadLimit:       cfg.ReadLimit,
		DispatchWorkers: cfg.DispatchWorkers,
		DispatchQueue:   cfg.DispatchQueue,
	}, manager, registry, logger)
	manager.Bind(bot)

	for _, path := range cfg.PluginPaths {
		if err := manager.LoadPath(path); err != nil {
			logger.Error("plugin path load failed", "path", path, "error", err)
		}
	}
	logger.Info("plugins loaded", "plugins", manager.Names())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, bot)
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, registry.Handler())
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "ws_path", cfg.WSPath, "version", Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := bot.Stop(cfg.ShutdownTimeout); err != nil {
		logger.Error("gateway stop failed", "error", err)
	}
	return nil
}
