package store

import (
	"context"
	"errors"
	"time"

	"aegis-soar/internal/schema"
)

const eventsTable = "events"

// EventStore persists and queries canonical events. All mutations are
// keyed by (event_id, timestamp) and are partial: they never touch fields
// owned by other stages.
type EventStore struct {
	client *Client
}

// NewEventStore creates an EventStore on top of the given client.
func NewEventStore(client *Client) *EventStore {
	return &EventStore{client: client}
}

func (s *EventStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.client.QueryTimeout())
}

// Insert persists a freshly parsed event.
func (s *EventStore) Insert(ctx context.Context, ev *schema.Event) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	batch, err := s.client.PrepareBatch(ctx, `
		INSERT INTO events (
			event_id, timestamp, event_name, event_source, source_ip,
			user_identity, severity, risk_score, status, analysis,
			description, raw_event
		)`)
	if err != nil {
		return wrapQueryError("Insert", eventsTable, err)
	}

	identity := ev.UserIdentity
	if identity == nil {
		identity = map[string]string{}
	}

	if err := batch.Append(
		ev.EventID,
		ev.Timestamp,
		ev.EventName,
		ev.EventSource,
		ev.SourceIP,
		identity,
		string(ev.Severity),
		uint8(ev.RiskScore),
		string(ev.Status),
		ev.Analysis,
		ev.Description,
		ev.RawEvent,
	); err != nil {
		return wrapQueryError("Insert", eventsTable, err)
	}

	if err := batch.Send(); err != nil {
		return wrapQueryError("Insert", eventsTable, err)
	}
	return nil
}

// MarkAnalyzed records the engine's verdict on an event: status becomes
// analyzed and the scoring fields are set. The status guard keeps the
// lifecycle forward-only under redelivery: a late duplicate cannot drag a
// remediated event back to analyzed. mutations_sync makes the update
// visible before returning, so a nil error means the verdict committed.
func (s *EventStore) MarkAnalyzed(ctx context.Context, eventID string, timestamp int64, riskScore int, severity schema.Severity, analysis string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.client.Exec(ctx, `
		ALTER TABLE events
		UPDATE status = ?, risk_score = ?, severity = ?, analysis = ?
		WHERE event_id = ? AND timestamp = ? AND status IN ('parsed', 'analyzed')
		SETTINGS mutations_sync = 1`,
		string(schema.StatusAnalyzed),
		uint8(riskScore),
		string(severity),
		analysis,
		eventID,
		timestamp,
	)
	if err != nil {
		return wrapQueryError("MarkAnalyzed", eventsTable, err)
	}
	return nil
}

// MarkRemediated moves an event to a terminal status (remediated or
// logged) after the remediator ran. Terminal states never change again.
func (s *EventStore) MarkRemediated(ctx context.Context, eventID string, timestamp int64, status schema.Status) error {
	if status != schema.StatusRemediated && status != schema.StatusLogged {
		return wrapQueryError("MarkRemediated", eventsTable,
			errors.New("status must be remediated or logged"))
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.client.Exec(ctx, `
		ALTER TABLE events
		UPDATE status = ?
		WHERE event_id = ? AND timestamp = ? AND status IN ('parsed', 'analyzed')
		SETTINGS mutations_sync = 1`,
		string(status),
		eventID,
		timestamp,
	)
	if err != nil {
		return wrapQueryError("MarkRemediated", eventsTable, err)
	}
	return nil
}

// CountAttempts returns how many events for the given source IP and any of
// the given event names were observed at or after the since timestamp
// (inclusive lower bound). With the table's primary key this is an indexed
// range scan, not a full scan. Read-only.
func (s *EventStore) CountAttempts(ctx context.Context, sourceIP string, eventNames []string, since int64) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT count()
		FROM events
		WHERE source_ip = ? AND event_name IN (?) AND timestamp >= ?`,
		sourceIP, eventNames, since,
	).Scan(&count)
	if err != nil {
		return 0, wrapQueryError("CountAttempts", eventsTable, err)
	}

	return int(count), nil
}

const eventColumns = `
	event_id, timestamp, event_name, event_source, source_ip,
	user_identity, severity, risk_score, status, analysis,
	description, raw_event`

func scanEvent(scan func(dest ...any) error) (*schema.Event, error) {
	var (
		ev        schema.Event
		identity  map[string]string
		severity  string
		status    string
		riskScore uint8
	)

	if err := scan(
		&ev.EventID, &ev.Timestamp, &ev.EventName, &ev.EventSource,
		&ev.SourceIP, &identity, &severity, &riskScore, &status,
		&ev.Analysis, &ev.Description, &ev.RawEvent,
	); err != nil {
		return nil, err
	}

	if len(identity) > 0 {
		ev.UserIdentity = identity
	}
	ev.Severity = schema.Severity(severity)
	ev.Status = schema.Status(status)
	ev.RiskScore = int(riskScore)

	return &ev, nil
}

// GetByID fetches the most recent record for an event ID.
func (s *EventStore) GetByID(ctx context.Context, eventID string) (*schema.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.client.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE event_id = ?
		ORDER BY timestamp DESC
		LIMIT 1`,
		eventID,
	)

	ev, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, wrapQueryError("GetByID", eventsTable, err)
		}
		// clickhouse-go reports an empty result as a scan error on Row.
		return nil, wrapNotFound("GetByID", eventsTable, eventID)
	}
	return ev, nil
}

// List returns recent events, optionally filtered by severity.
func (s *EventStore) List(ctx context.Context, limit int, severity schema.Severity) ([]*schema.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if severity != "" {
		query += ` WHERE severity = ?`
		args = append(args, string(severity))
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.client.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError("List", eventsTable, err)
	}
	defer rows.Close()

	var events []*schema.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, wrapQueryError("List", eventsTable, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SeverityStats holds event counts grouped by severity.
type SeverityStats struct {
	Total      uint64            `json:"total"`
	BySeverity map[string]uint64 `json:"by_severity"`
}

// Stats returns event counts grouped by severity.
func (s *EventStore) Stats(ctx context.Context) (*SeverityStats, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.client.Query(ctx, `
		SELECT severity, count()
		FROM events
		GROUP BY severity`)
	if err != nil {
		return nil, wrapQueryError("Stats", eventsTable, err)
	}
	defer rows.Close()

	stats := &SeverityStats{BySeverity: map[string]uint64{
		string(schema.SeverityHigh):   0,
		string(schema.SeverityMedium): 0,
		string(schema.SeverityLow):    0,
	}}

	for rows.Next() {
		var severity string
		var count uint64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, wrapQueryError("Stats", eventsTable, err)
		}
		stats.BySeverity[severity] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// WindowStart computes the inclusive lower bound of a counting window
// ending now.
func WindowStart(now time.Time, window time.Duration) int64 {
	return now.Add(-window).Unix()
}
