// Package main is the entry point for the remediation service.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aegis-soar/internal/config"
	"aegis-soar/internal/intel"
	"aegis-soar/internal/kafka"
	"aegis-soar/internal/remediate"
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

	logger.Info("configuration loaded",
		"remediation_topic", cfg.Kafka.Topics.Remediation,
		"blocklist_key", cfg.Redis.BlocklistKey,
	)

	client, err := store.NewClient(storeConfig(cfg))
	if err != nil {
		logger.Error("failed to connect to clickhouse", "error", err)
		os.Exit(1)
	}

	// Without Redis the BLOCK_IP executor stays unregistered and those
	// actions are skipped.
	var blocker remediate.IPBlocker
	redisClient, err := intel.NewClient(intel.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
		OpTimeout:   cfg.Redis.OpTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, BLOCK_IP disabled", "error", err)
	} else {
		blocker = intel.NewBlocklist(redisClient, cfg.Redis.BlocklistKey)
	}

	remediator, err := remediate.New(
		remediate.DefaultExecutors(blocker, logger),
		store.NewEventStore(client),
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize remediator", "error", err)
		os.Exit(1)
	}

	kcfg := kafka.DefaultConfig(cfg.Kafka.Brokers, cfg.Kafka.Topics.Remediation)
	kcfg.ConsumerGroup = "soar-remediate"
	kcfg.SecurityProtocol = cfg.Kafka.SecurityProtocol
	kcfg.SASLMechanism = cfg.Kafka.SASLMechanism
	kcfg.SASLUsername = cfg.Kafka.SASLUsername
	kcfg.SASLPassword = cfg.Kafka.SASLPassword

	consumer, err := kafka.NewConsumer(kcfg, remediator.Handle, logger)
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
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := client.Close(); err != nil {
		logger.Error("clickhouse close error", "error", err)
	}

	metrics := remediator.Metrics()
	logger.Info("shutdown complete",
		"events_remediated", metrics.Remediated,
		"events_logged", metrics.Logged,
		"actions_skipped", metrics.ActionsSkipped,
	)
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
