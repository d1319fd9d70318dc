package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one consumed message. Returning nil commits the
// offset; returning an error leaves it uncommitted so the message is
// redelivered. Handlers must therefore swallow (and log) permanent failures
// like malformed payloads, and return errors only for transient ones.
type MessageHandler func(ctx context.Context, msg Message) error

// Message is a consumed Kafka message.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Consumer reads messages from a topic as part of a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	config  *Config
	logger  *slog.Logger
	handler MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	consumed atomic.Int64
	errors   atomic.Int64
	closed   atomic.Bool
	started  atomic.Bool
}

// NewConsumer creates a new consumer for the configured topic and group.
func NewConsumer(config *Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ConsumerGroup == "" {
		return nil, errors.New("kafka: consumer group is required")
	}
	if handler == nil {
		return nil, errors.New("kafka: message handler is required")
	}

	dialer, err := config.dialer()
	if err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		GroupID:        config.ConsumerGroup,
		Topic:          config.Topic,
		Dialer:         dialer,
		MaxWait:        config.MaxWait,
		CommitInterval: config.CommitInterval,
		SessionTimeout: config.SessionTimeout,
		StartOffset:    kafka.LastOffset,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())

	logger.Info("kafka consumer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"group", config.ConsumerGroup,
	)

	return &Consumer{
		reader:  reader,
		config:  config,
		logger:  logger,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins consuming in a goroutine. Use Stop to shut down.
func (c *Consumer) Start() error {
	if c.started.Swap(true) {
		return errors.New("kafka: consumer already started")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.consumeLoop(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("consumer loop exited", "error", err)
		}
	}()

	return nil
}

// consumeLoop fetches, handles, and commits messages until cancelled.
func (c *Consumer) consumeLoop() error {
	for {
		kafkaMsg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			c.errors.Add(1)
			c.logger.Error("failed to fetch message",
				"topic", c.config.Topic,
				"error", err,
			)

			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}

		msg := Message{
			Topic:     kafkaMsg.Topic,
			Partition: kafkaMsg.Partition,
			Offset:    kafkaMsg.Offset,
			Key:       kafkaMsg.Key,
			Value:     kafkaMsg.Value,
			Time:      kafkaMsg.Time,
		}

		handleCtx, cancel := context.WithTimeout(c.ctx, c.config.HandleTimeout)
		err = c.handler(handleCtx, msg)
		cancel()

		if err != nil {
			c.errors.Add(1)
			c.logger.Error("handler failed, message will be redelivered",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		if err := c.reader.CommitMessages(c.ctx, kafkaMsg); err != nil {
			c.logger.Error("failed to commit offset",
				"offset", kafkaMsg.Offset,
				"error", err,
			)
			continue
		}

		c.consumed.Add(1)
	}
}

// Metrics returns current consumer counters.
func (c *Consumer) Metrics() Metrics {
	return Metrics{
		MessagesConsumed: c.consumed.Load(),
		Errors:           c.errors.Load(),
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.logger.Info("stopping kafka consumer",
		"topic", c.config.Topic,
		"messages_consumed", c.consumed.Load(),
	)

	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close consumer: %w", err)
	}
	return nil
}
