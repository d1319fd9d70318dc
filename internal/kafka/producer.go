package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer sends messages to a single topic with bounded retries.
type Producer struct {
	writer *kafka.Writer
	config *Config
	logger *slog.Logger

	produced atomic.Int64
	errors   atomic.Int64
	retries  atomic.Int64
	closed   atomic.Bool
}

// NewProducer creates a new producer for the configured topic.
func NewProducer(config *Config, logger *slog.Logger) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialer, err := config.dialer()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: config.BatchTimeout,
		MaxAttempts:  config.MaxRetries,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
			SASL: dialer.SASLMechanism,
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("kafka producer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
	)

	return &Producer{writer: writer, config: config, logger: logger}, nil
}

// Produce sends a single keyed message, retrying transient failures with
// exponential backoff.
func (p *Producer) Produce(ctx context.Context, key, value []byte) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg := kafka.Message{Key: key, Value: value, Time: time.Now()}

	var lastErr error
	backoff := p.config.RetryBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			lastErr = err
			p.errors.Add(1)
			p.logger.Warn("kafka produce failed",
				"topic", p.config.Topic,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		p.produced.Add(1)
		return nil
	}

	return fmt.Errorf("kafka: produce to %s failed after %d attempts: %w",
		p.config.Topic, p.config.MaxRetries+1, lastErr)
}

// ProduceJSON marshals the value and sends it keyed by key.
func (p *Producer) ProduceJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message: %w", err)
	}
	return p.Produce(ctx, []byte(key), data)
}

// Metrics returns current producer counters.
func (p *Producer) Metrics() Metrics {
	return Metrics{
		MessagesProduced: p.produced.Load(),
		Errors:           p.errors.Load(),
		Retries:          p.retries.Load(),
	}
}

// Close flushes buffered messages and closes the producer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.logger.Info("closing kafka producer",
		"topic", p.config.Topic,
		"messages_produced", p.produced.Load(),
	)

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close producer: %w", err)
	}
	return nil
}
