package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"aegis-soar/internal/kafka"
	"aegis-soar/internal/schema"
	"aegis-soar/internal/store"
)

type fakeWriter struct {
	inserted  []*schema.Event
	existing  map[string]*schema.Event
	insertErr error
	getErr    error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{existing: make(map[string]*schema.Event)}
}

func (f *fakeWriter) Insert(_ context.Context, ev *schema.Event) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, ev)
	f.existing[ev.EventID] = ev
	return nil
}

func (f *fakeWriter) GetByID(_ context.Context, eventID string) (*schema.Event, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if ev, ok := f.existing[eventID]; ok {
		return ev, nil
	}
	return nil, store.ErrNotFound
}

type fakePublisher struct {
	events []schema.Event
	keys   []string
	err    error
}

func (f *fakePublisher) ProduceJSON(_ context.Context, key string, value any) error {
	if f.err != nil {
		return f.err
	}
	ev, ok := value.(*schema.Event)
	if !ok {
		return fmt.Errorf("unexpected value type %T", value)
	}
	f.events = append(f.events, *ev)
	f.keys = append(f.keys, key)
	return nil
}

type fakeArchiver struct {
	stored map[string][]byte
	err    error
}

func (f *fakeArchiver) Store(_ context.Context, eventID string, _ int64, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	f.stored[eventID] = payload
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestParser(t *testing.T, writer EventWriter, out Publisher, archiver Archiver) *Parser {
	t.Helper()
	p, err := New(schema.NewValidator(), writer, out, archiver, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func rawMessage(t *testing.T, offset int64, fields map[string]any) kafka.Message {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: "soar.raw", Partition: 0, Offset: offset, Value: data}
}

func validFields() map[string]any {
	return map[string]any{
		"event_name": "failed_login",
		"source_ip":  "203.0.113.7",
		"username":   "alice",
		"timestamp":  time.Now().Unix(),
		"severity":   "LOW",
	}
}

func TestHandlePersistsAndForwards(t *testing.T) {
	writer := newFakeWriter()
	out := &fakePublisher{}
	arch := &fakeArchiver{}
	p := newTestParser(t, writer, out, arch)

	msg := rawMessage(t, 42, validFields())
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(writer.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(writer.inserted))
	}
	ev := writer.inserted[0]
	if ev.EventID == "" || ev.Status != schema.StatusParsed {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.EventName != "failed_login" || ev.SourceIP != "203.0.113.7" {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
	if ev.UserIdentity["username"] != "alice" {
		t.Fatalf("UserIdentity = %v", ev.UserIdentity)
	}

	if len(out.events) != 1 {
		t.Fatalf("forwarded %d events, want 1", len(out.events))
	}
	if out.keys[0] != "203.0.113.7" {
		t.Fatalf("forward key = %s, want source IP", out.keys[0])
	}
	if _, ok := arch.stored[ev.EventID]; !ok {
		t.Fatal("raw payload not archived")
	}
}

func TestHandleStableEventID(t *testing.T) {
	writer := newFakeWriter()
	p := newTestParser(t, writer, &fakePublisher{}, nil)

	msg := rawMessage(t, 7, validFields())
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	first := writer.inserted[0].EventID

	// Same coordinates yield the same ID, a later offset a different one.
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle redelivery: %v", err)
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("redelivery inserted again: %d rows", len(writer.inserted))
	}
	if got := p.Metrics().Duplicate; got != 1 {
		t.Fatalf("Duplicate = %d, want 1", got)
	}

	other := rawMessage(t, 8, validFields())
	if err := p.Handle(context.Background(), other); err != nil {
		t.Fatalf("Handle other: %v", err)
	}
	if writer.inserted[1].EventID == first {
		t.Fatal("distinct messages must get distinct event IDs")
	}
}

func TestHandleDropsUndecodable(t *testing.T) {
	writer := newFakeWriter()
	p := newTestParser(t, writer, &fakePublisher{}, nil)

	msg := kafka.Message{Topic: "soar.raw", Value: []byte("{broken")}
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("undecodable payload must be dropped, got %v", err)
	}
	if len(writer.inserted) != 0 {
		t.Fatal("dropped payload must not be persisted")
	}
	if p.Metrics().Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", p.Metrics().Dropped)
	}
}

func TestHandleDropsStaleEvent(t *testing.T) {
	writer := newFakeWriter()
	p := newTestParser(t, writer, &fakePublisher{}, nil)

	fields := validFields()
	fields["timestamp"] = time.Now().Add(-60 * 24 * time.Hour).Unix()
	if err := p.Handle(context.Background(), rawMessage(t, 1, fields)); err != nil {
		t.Fatalf("stale event must be dropped, got %v", err)
	}
	if len(writer.inserted) != 0 {
		t.Fatal("stale event must not be persisted")
	}
}

func TestHandleObservedTimestampFallback(t *testing.T) {
	writer := newFakeWriter()
	p := newTestParser(t, writer, &fakePublisher{}, nil)
	fixed := time.Now().Add(-time.Minute).Truncate(time.Second).UTC()
	p.now = func() time.Time { return fixed }

	fields := validFields()
	delete(fields, "timestamp")
	if err := p.Handle(context.Background(), rawMessage(t, 1, fields)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1 (event with observed timestamp must not be dropped)", len(writer.inserted))
	}
	if got := writer.inserted[0].Timestamp; got != fixed.Unix() {
		t.Fatalf("Timestamp = %d, want observed time %d", got, fixed.Unix())
	}
}

func TestHandleInsertFailureRedelivers(t *testing.T) {
	writer := newFakeWriter()
	writer.insertErr = errors.New("clickhouse down")
	p := newTestParser(t, writer, &fakePublisher{}, nil)

	if err := p.Handle(context.Background(), rawMessage(t, 1, validFields())); err == nil {
		t.Fatal("insert failure must surface for redelivery")
	}
}

func TestHandleArchiveFailureIsBestEffort(t *testing.T) {
	writer := newFakeWriter()
	out := &fakePublisher{}
	p := newTestParser(t, writer, out, &fakeArchiver{err: errors.New("s3 down")})

	if err := p.Handle(context.Background(), rawMessage(t, 1, validFields())); err != nil {
		t.Fatalf("archive failure must not fail the message, got %v", err)
	}
	if len(out.events) != 1 {
		t.Fatal("event must still be forwarded")
	}
}

func TestHandleForwardFailureRedelivers(t *testing.T) {
	writer := newFakeWriter()
	p := newTestParser(t, writer, &fakePublisher{err: errors.New("broker down")}, nil)

	if err := p.Handle(context.Background(), rawMessage(t, 1, validFields())); err == nil {
		t.Fatal("forward failure must surface for redelivery")
	}
	// The row is already persisted; redelivery will skip the insert.
	if len(writer.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(writer.inserted))
	}
}

func TestHandleDetailEnvelope(t *testing.T) {
	writer := newFakeWriter()
	p := newTestParser(t, writer, &fakePublisher{}, nil)

	env := map[string]any{
		"source":      "aegis.intake",
		"detail_type": "failed_login",
		"detail":      validFields(),
	}
	if err := p.Handle(context.Background(), rawMessage(t, 1, env)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(writer.inserted) != 1 || writer.inserted[0].EventName != "failed_login" {
		t.Fatalf("envelope not unwrapped: %+v", writer.inserted)
	}
}
