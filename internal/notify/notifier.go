package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"aegis-soar/internal/kafka"
	"aegis-soar/internal/schema"
)

// Notifier consumes notification messages and fans them out to every
// configured channel.
type Notifier struct {
	channels []Channel
	logger   *slog.Logger

	delivered atomic.Int64
	failures  atomic.Int64
	dropped   atomic.Int64
}

// New builds a Notifier.
func New(channels []Channel, logger *slog.Logger) (*Notifier, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("notify: at least one channel is required")
	}
	return &Notifier{channels: channels, logger: logger}, nil
}

// Handle is the consumer handler for the notification topic. A failing
// channel never stops delivery to the rest. The message is redelivered only
// when no channel accepted it, so a retry cannot double-page a channel that
// already succeeded alongside total failure.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	var notification schema.NotificationMessage
	if err := json.Unmarshal(msg.Value, &notification); err != nil {
		n.dropped.Add(1)
		n.logger.Error("dropping undecodable notification",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err)
		return nil
	}

	alert := Format(notification)

	var sent int
	for _, ch := range n.channels {
		if err := ch.Send(ctx, alert); err != nil {
			n.failures.Add(1)
			n.logger.Error("channel delivery failed",
				"channel", ch.Name(),
				"event_id", alert.EventID,
				"error", err)
			continue
		}
		sent++
	}

	if sent == 0 {
		return fmt.Errorf("no channel accepted alert %s", alert.EventID)
	}

	n.delivered.Add(1)
	return nil
}

// Metrics reports notifier counters.
type Metrics struct {
	Delivered       int64 `json:"delivered"`
	ChannelFailures int64 `json:"channel_failures"`
	Dropped         int64 `json:"dropped"`
}

// Metrics returns a snapshot of the notifier counters.
func (n *Notifier) Metrics() Metrics {
	return Metrics{
		Delivered:       n.delivered.Load(),
		ChannelFailures: n.failures.Load(),
		Dropped:         n.dropped.Load(),
	}
}
