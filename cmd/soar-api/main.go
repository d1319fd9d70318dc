// Package main is the entry point for the read API service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aegis-soar/internal/api"
	"aegis-soar/internal/config"
	"aegis-soar/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("configuration loaded", "http_port", cfg.API.HTTPPort)

	client, err := store.NewClient(storeConfig(cfg))
	if err != nil {
		logger.Error("failed to connect to clickhouse", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store.NewEventStore(client), client, cfg.API, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.HTTPPort),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		logger.Info("starting read API server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := client.Close(); err != nil {
		logger.Error("clickhouse close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func storeConfig(cfg *config.Config) store.Config {
	ch := cfg.Storage.ClickHouse
	return store.Config{
		Hosts:           ch.Hosts,
		Database:        ch.Database,
		Username:        ch.Username,
		Password:        ch.Password,
		MaxOpenConns:    ch.MaxOpenConns,
		MaxIdleConns:    ch.MaxIdleConns,
		ConnMaxLifetime: ch.ConnMaxLifetime,
		TLSEnabled:      ch.TLSEnabled,
		DialTimeout:     ch.DialTimeout,
		QueryTimeout:    ch.QueryTimeout,
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
