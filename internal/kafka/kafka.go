// Package kafka wraps the Kafka producers and consumers that connect the
// pipeline stages. Delivery is at-least-once: consumers commit offsets only
// after the handler returns nil, so a crashed or failed handler causes
// redelivery. Stage idempotency, not the transport, makes retries safe.
package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Config holds connection and behavior settings for one topic.
type Config struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`

	// SecurityProtocol: PLAINTEXT, SASL_PLAINTEXT, SASL_SSL.
	SecurityProtocol string `yaml:"security_protocol"`
	SASLMechanism    string `yaml:"sasl_mechanism,omitempty"`
	SASLUsername     string `yaml:"sasl_username,omitempty"`
	SASLPassword     string `yaml:"sasl_password,omitempty"`

	// Producer settings.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Consumer settings.
	MaxWait        time.Duration `yaml:"max_wait"`
	CommitInterval time.Duration `yaml:"commit_interval"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	HandleTimeout  time.Duration `yaml:"handle_timeout"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// DefaultConfig returns a Config with sensible defaults for the given topic.
func DefaultConfig(brokers []string, topic string) *Config {
	return &Config{
		Brokers:          brokers,
		Topic:            topic,
		SecurityProtocol: "PLAINTEXT",
		BatchTimeout:     10 * time.Millisecond,
		MaxRetries:       3,
		RetryBackoff:     100 * time.Millisecond,
		WriteTimeout:     10 * time.Second,
		MaxWait:          500 * time.Millisecond,
		CommitInterval:   time.Second,
		SessionTimeout:   30 * time.Second,
		HandleTimeout:    30 * time.Second,
		DialTimeout:      10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}

	switch c.SecurityProtocol {
	case "", "PLAINTEXT":
	case "SASL_PLAINTEXT", "SASL_SSL":
		switch c.SASLMechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("kafka: invalid SASL mechanism: %s", c.SASLMechanism)
		}
		if c.SASLUsername == "" || c.SASLPassword == "" {
			return errors.New("kafka: SASL credentials required")
		}
	default:
		return fmt.Errorf("kafka: invalid security protocol: %s", c.SecurityProtocol)
	}

	return nil
}

// saslMechanism returns the configured SASL mechanism, or nil for PLAINTEXT.
func (c *Config) saslMechanism() (sasl.Mechanism, error) {
	switch c.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil, nil
	}

	switch c.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: c.SASLUsername, Password: c.SASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.SASLUsername, c.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.SASLUsername, c.SASLPassword)
	default:
		return nil, fmt.Errorf("kafka: unsupported SASL mechanism: %s", c.SASLMechanism)
	}
}

// dialer returns a configured kafka.Dialer.
func (c *Config) dialer() (*kafka.Dialer, error) {
	mechanism, err := c.saslMechanism()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       c.DialTimeout,
		DualStack:     true,
		SASLMechanism: mechanism,
	}, nil
}

// Common errors shared by producer and consumer.
var (
	ErrProducerClosed = errors.New("kafka: producer is closed")
	ErrConsumerClosed = errors.New("kafka: consumer is closed")
)

// Metrics holds producer/consumer counters.
type Metrics struct {
	MessagesProduced int64 `json:"messages_produced"`
	MessagesConsumed int64 `json:"messages_consumed"`
	Errors           int64 `json:"errors"`
	Retries          int64 `json:"retries"`
}
