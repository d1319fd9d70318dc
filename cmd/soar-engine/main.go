// Package main is the entry point for the risk scoring engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aegis-soar/internal/config"
	"aegis-soar/internal/engine"
	"aegis-soar/internal/intel"
	"aegis-soar/internal/kafka"
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
		"events_topic", cfg.Kafka.Topics.Events,
		"remediation_topic", cfg.Kafka.Topics.Remediation,
		"notification_topic", cfg.Kafka.Topics.Notification,
		"consumer_group", cfg.Engine.ConsumerGroup,
	)

	client, err := store.NewClient(storeConfig(cfg))
	if err != nil {
		logger.Error("failed to connect to clickhouse", "error", err)
		os.Exit(1)
	}
	eventStore := store.NewEventStore(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The malicious IP set starts from the static seed; Redis extends it
	// when reachable.
	var ipSetStore intel.SetStore
	redisClient, err := intel.NewClient(intel.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
		OpTimeout:   cfg.Redis.OpTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, using static malicious IP set only", "error", err)
	} else {
		ipSetStore = redisClient
	}

	ipSet := intel.NewIPSet(ipSetStore, cfg.Redis.MaliciousSetKey, cfg.Engine.MaliciousIPs, logger)
	if err := ipSet.Refresh(ctx); err != nil {
		logger.Warn("initial malicious IP refresh failed", "error", err)
	}
	ipSet.StartRefresher(ctx, cfg.Redis.RefreshInterval)

	remediationOut, err := kafka.NewProducer(kafkaConfig(cfg, cfg.Kafka.Topics.Remediation, ""), logger)
	if err != nil {
		logger.Error("failed to initialize remediation producer", "error", err)
		os.Exit(1)
	}
	notificationOut, err := kafka.NewProducer(kafkaConfig(cfg, cfg.Kafka.Topics.Notification, ""), logger)
	if err != nil {
		logger.Error("failed to initialize notification producer", "error", err)
		os.Exit(1)
	}

	analyzer, err := engine.NewAnalyzer(engine.AnalyzerConfig{
		Counter:         eventStore,
		Updater:         eventStore,
		RemediationOut:  remediationOut,
		NotificationOut: notificationOut,
		MaliciousIPs:    ipSet,
		CriticalActions: cfg.Engine.CriticalActions,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to initialize analyzer", "error", err)
		os.Exit(1)
	}

	handler := func(ctx context.Context, msg kafka.Message) error {
		return analyzer.Handle(ctx, msg.Value)
	}
	consumer, err := kafka.NewConsumer(kafkaConfig(cfg, cfg.Kafka.Topics.Events, cfg.Engine.ConsumerGroup), handler, logger)
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
	if err := remediationOut.Close(); err != nil {
		logger.Error("remediation producer close error", "error", err)
	}
	if err := notificationOut.Close(); err != nil {
		logger.Error("notification producer close error", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := client.Close(); err != nil {
		logger.Error("clickhouse close error", "error", err)
	}

	metrics := analyzer.Metrics()
	logger.Info("shutdown complete",
		"events_analyzed", metrics.Analyzed,
		"events_failed", metrics.Failed,
		"notifications", metrics.Notified,
		"escalations", metrics.Escalated,
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
