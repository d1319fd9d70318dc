// Package main is the entry point for the event intake service.
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

	"aegis-soar/internal/config"
	"aegis-soar/internal/ingress"
	"aegis-soar/internal/intel"
	"aegis-soar/internal/kafka"
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

	logger.Info("configuration loaded",
		"http_port", cfg.Ingress.HTTPPort,
		"raw_topic", cfg.Kafka.Topics.Raw,
		"auth_enabled", cfg.Ingress.Auth.Enabled,
		"rate_limit_enabled", cfg.Ingress.RateLimit.Enabled,
	)

	producer, err := kafka.NewProducer(kafkaConfig(cfg, cfg.Kafka.Topics.Raw), logger)
	if err != nil {
		logger.Error("failed to initialize producer", "error", err)
		os.Exit(1)
	}

	// The blocklist is advisory at the intake, so a missing Redis only
	// disables it.
	var blocklist ingress.Blocklist
	redisClient, err := intel.NewClient(intel.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
		OpTimeout:   cfg.Redis.OpTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, blocklist disabled", "error", err)
	} else {
		blocklist = intel.NewBlocklist(redisClient, cfg.Redis.BlocklistKey)
	}

	handler := ingress.NewHandler(producer, blocklist, logger).
		WithMaxPayload(cfg.Ingress.MaxPayloadSize)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Ingress.HTTPPort),
		Handler:      ingress.WithMiddleware(handler.Routes(), cfg.Ingress, logger),
		ReadTimeout:  cfg.Ingress.ReadTimeout,
		WriteTimeout: cfg.Ingress.WriteTimeout,
	}

	go func() {
		logger.Info("starting intake server", "address", server.Addr)
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
	if err := producer.Close(); err != nil {
		logger.Error("producer close error", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	metrics := producer.Metrics()
	logger.Info("shutdown complete", "messages_produced", metrics.MessagesProduced)
}

func kafkaConfig(cfg *config.Config, topic string) *kafka.Config {
	kcfg := kafka.DefaultConfig(cfg.Kafka.Brokers, topic)
	kcfg.SecurityProtocol = cfg.Kafka.SecurityProtocol
	kcfg.SASLMechanism = cfg.Kafka.SASLMechanism
	kcfg.SASLUsername = cfg.Kafka.SASLUsername
	kcfg.SASLPassword = cfg.Kafka.SASLPassword
	return kcfg
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
