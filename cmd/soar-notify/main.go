// Package main is the entry point for the alert delivery service.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aegis-soar/internal/config"
	"aegis-soar/internal/kafka"
	"aegis-soar/internal/notify"
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
		"notification_topic", cfg.Kafka.Topics.Notification,
		"consumer_group", cfg.Notify.ConsumerGroup,
		"channels", len(cfg.Notify.Channels),
	)

	channels := notify.BuildChannels(cfg.Notify.Channels, logger)
	notifier, err := notify.New(channels, logger)
	if err != nil {
		logger.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}

	kcfg := kafka.DefaultConfig(cfg.Kafka.Brokers, cfg.Kafka.Topics.Notification)
	kcfg.ConsumerGroup = cfg.Notify.ConsumerGroup
	kcfg.SecurityProtocol = cfg.Kafka.SecurityProtocol
	kcfg.SASLMechanism = cfg.Kafka.SASLMechanism
	kcfg.SASLUsername = cfg.Kafka.SASLUsername
	kcfg.SASLPassword = cfg.Kafka.SASLPassword

	consumer, err := kafka.NewConsumer(kcfg, notifier.Handle, logger)
	if err != nil {
		logger.Error("failed to initialize consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	if err := consumer.Stop(); err != nil {
		logger.Error("consumer stop error", "error", err)
	}

	metrics := notifier.Metrics()
	logger.Info("shutdown complete",
		"alerts_delivered", metrics.Delivered,
		"channel_failures", metrics.ChannelFailures,
	)
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
