// Package parser normalizes raw signals into canonical events. It consumes
// the raw topic, persists each event, archives the original payload, and
// forwards the event to the risk engine topic.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aegis-soar/internal/kafka"
	"aegis-soar/internal/schema"
	"aegis-soar/internal/store"
)

// EventWriter persists parsed events. Satisfied by *store.EventStore.
type EventWriter interface {
	Insert(ctx context.Context, ev *schema.Event) error
	GetByID(ctx context.Context, eventID string) (*schema.Event, error)
}

// Publisher forwards events to the engine topic. Satisfied by
// *kafka.Producer.
type Publisher interface {
	ProduceJSON(ctx context.Context, key string, value any) error
}

// Archiver stores raw payloads. Satisfied by *archive.Archiver.
type Archiver interface {
	Store(ctx context.Context, eventID string, timestamp int64, payload []byte) error
}

// Parser turns raw payloads into persisted, validated events.
type Parser struct {
	validator *schema.Validator
	writer    EventWriter
	out       Publisher
	archiver  Archiver
	logger    *slog.Logger

	now func() time.Time

	parsed    atomic.Int64
	dropped   atomic.Int64
	duplicate atomic.Int64
}

// New builds a Parser. archiver may be nil, disabling archival.
func New(validator *schema.Validator, writer EventWriter, out Publisher, archiver Archiver, logger *slog.Logger) (*Parser, error) {
	if validator == nil || writer == nil || out == nil {
		return nil, fmt.Errorf("parser: validator, writer, and publisher are required")
	}
	return &Parser{
		validator: validator,
		writer:    writer,
		out:       out,
		archiver:  archiver,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Handle is the consumer handler for the raw topic. Undecodable and invalid
// payloads are dropped with a log line; storage and forwarding failures are
// returned so the message is redelivered.
func (p *Parser) Handle(ctx context.Context, msg kafka.Message) error {
	inbound, err := schema.DecodeInbound(msg.Value)
	if err != nil {
		p.dropped.Add(1)
		p.logger.Error("dropping undecodable payload",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err)
		return nil
	}

	ev := p.buildEvent(inbound, msg)

	if err := p.validator.Validate(ev); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("dropping invalid event",
			"event_name", ev.EventName,
			"source_ip", ev.SourceIP,
			"error", err)
		return nil
	}

	// The event ID is derived from the message coordinates, so a redelivered
	// message maps to the same row and the insert can be skipped.
	existing, err := p.writer.GetByID(ctx, ev.EventID)
	switch {
	case err == nil && existing != nil:
		p.duplicate.Add(1)
		p.logger.Debug("skipping duplicate delivery", "event_id", ev.EventID)
	case err != nil && !store.IsNotFound(err):
		return fmt.Errorf("check existing event: %w", err)
	default:
		if err := p.writer.Insert(ctx, ev); err != nil {
			return fmt.Errorf("persist event: %w", err)
		}
	}

	if p.archiver != nil {
		if err := p.archiver.Store(ctx, ev.EventID, ev.Timestamp, []byte(ev.RawEvent)); err != nil {
			// The payload is already in the store; archival is best-effort.
			p.logger.Warn("raw event archival failed",
				"event_id", ev.EventID,
				"error", err)
		}
	}

	if err := p.out.ProduceJSON(ctx, ev.SourceIP, ev); err != nil {
		return fmt.Errorf("forward event: %w", err)
	}

	p.parsed.Add(1)
	return nil
}

// buildEvent assembles the canonical event. The ID is a name-based UUID over
// the message coordinates so each Kafka message maps to exactly one event.
func (p *Parser) buildEvent(in *schema.Inbound, msg kafka.Message) *schema.Event {
	name := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))

	ts := in.Timestamp
	if ts == 0 {
		ts = p.now().Unix()
	}

	return &schema.Event{
		EventID:      id.String(),
		Timestamp:    ts,
		EventName:    in.EventName,
		EventSource:  in.EventSource,
		SourceIP:     in.SourceIP,
		UserIdentity: in.UserIdentity,
		Severity:     in.Severity,
		RiskScore:    0,
		Status:       schema.StatusParsed,
		Description:  in.Description,
		RawEvent:     in.Raw,
	}
}

// Metrics reports parser counters.
type Metrics struct {
	Parsed    int64 `json:"parsed"`
	Dropped   int64 `json:"dropped"`
	Duplicate int64 `json:"duplicate"`
}

// Metrics returns a snapshot of the parser counters.
func (p *Parser) Metrics() Metrics {
	return Metrics{
		Parsed:    p.parsed.Load(),
		Dropped:   p.dropped.Load(),
		Duplicate: p.duplicate.Load(),
	}
}
