package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid plaintext", func(t *testing.T) {
		cfg := DefaultConfig([]string{"localhost:9092"}, "soar.events")
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("no brokers", func(t *testing.T) {
		cfg := DefaultConfig(nil, "soar.events")
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for empty brokers")
		}
	})

	t.Run("no topic", func(t *testing.T) {
		cfg := DefaultConfig([]string{"localhost:9092"}, "")
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for empty topic")
		}
	})

	t.Run("bad security protocol", func(t *testing.T) {
		cfg := DefaultConfig([]string{"localhost:9092"}, "t")
		cfg.SecurityProtocol = "KERBEROS"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown security protocol")
		}
	})

	t.Run("sasl without credentials", func(t *testing.T) {
		cfg := DefaultConfig([]string{"localhost:9092"}, "t")
		cfg.SecurityProtocol = "SASL_PLAINTEXT"
		cfg.SASLMechanism = "PLAIN"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing SASL credentials")
		}
	})

	t.Run("sasl scram", func(t *testing.T) {
		cfg := DefaultConfig([]string{"localhost:9092"}, "t")
		cfg.SecurityProtocol = "SASL_PLAINTEXT"
		cfg.SASLMechanism = "SCRAM-SHA-256"
		cfg.SASLUsername = "user"
		cfg.SASLPassword = "pass"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}

		mech, err := cfg.saslMechanism()
		if err != nil {
			t.Fatalf("saslMechanism() error = %v", err)
		}
		if mech == nil {
			t.Error("saslMechanism() = nil, want SCRAM mechanism")
		}
	})
}

func TestNewConsumerRequiresGroupAndHandler(t *testing.T) {
	cfg := DefaultConfig([]string{"localhost:9092"}, "t")

	handler := func(ctx context.Context, m Message) error { return nil }
	if _, err := NewConsumer(cfg, handler, discardLogger()); err == nil {
		t.Error("expected error for missing consumer group")
	}

	cfg.ConsumerGroup = "g"
	if _, err := NewConsumer(cfg, nil, discardLogger()); err == nil {
		t.Error("expected error for nil handler")
	}
}
