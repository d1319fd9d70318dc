// Package main is the entry point for the event parser service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aegis-soar/internal/archive"
	"aegis-soar/internal/config"
	"aegis-soar/internal/kafka"
	"aegis-soar/internal/parser"
	"aegis-soar/internal/schema"
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
		"raw_topic", cfg.Kafka.Topics.Raw,
		"events_topic", cfg.Kafka.Topics.Events,
		"archive_enabled", cfg.Archive.Enabled,
	)

	client, err := store.NewClient(storeConfig(cfg))
	if err != nil {
		logger.Error("failed to connect to clickhouse", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("running database migrations")
	if err := store.NewMigrator(client).Run(ctx); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	producer, err := kafka.NewProducer(kafkaConfig(cfg, cfg.Kafka.Topics.Events, ""), logger)
	if err != nil {
		logger.Error("failed to initialize producer", "error", err)
		os.Exit(1)
	}

	var archiver parser.Archiver
	if cfg.Archive.Enabled {
		a, err := archive.New(ctx, cfg.Archive.S3, logger)
		if err != nil {
			logger.Error("failed to initialize archive", "error", err)
			os.Exit(1)
		}
		archiver = a
	}

	validator := schema.NewValidatorWithConfig(schema.ValidatorConfig{
		MaxAge:    cfg.Validation.MaxEventAge,
		MaxFuture: cfg.Validation.MaxFuture,
	})

	p, err := parser.New(validator, store.NewEventStore(client), producer, archiver, logger)
	if err != nil {
		logger.Error("failed to initialize parser", "error", err)
		os.Exit(1)
	}

	consumer, err := kafka.NewConsumer(kafkaConfig(cfg, cfg.Kafka.Topics.Raw, "soar-parser"), p.Handle, logger)
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
	if err := producer.Close(); err != nil {
		logger.Error("producer close error", "error", err)
	}
	if err := client.Close(); err != nil {
		logger.Error("clickhouse close error", "error", err)
	}

	metrics := p.Metrics()
	logger.Info("shutdown complete",
		"events_parsed", metrics.Parsed,
		"events_dropped", metrics.Dropped,
		"duplicates_skipped", metrics.Duplicate,
	)
}

func kafkaConfig(cfg *config.Config, topic, group string) *kafka.Config {
	kcfg := kafka.DefaultConfig(cfg.Kafka.Brokers, topic)
	kcfg.ConsumerGroup = group
	kcfg.SecurityProtocol = cfg.Kafka.SecurityProtocol
	kcfg.SASLMechanism = cfg.Kafka.SASLMechanism
	kcfg.SASLUsername = cfg.Kafka.SASLUsername
	kcfg.SASLPassword = cfg.Kafka.SASLPassword
	return kcfg
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
