package engine

import (
	"context"
	"log/slog"
	"time"

	"aegis-soar/internal/schema"
	"aegis-soar/internal/store"
)

// AttemptCounter counts tracked events from a source IP since a point in
// time. Satisfied by *store.EventStore.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, sourceIP string, eventNames []string, since int64) (int, error)
}

// countAttempts returns the windowed attempt count for ev, or 0 when the
// event is not in the tracked set or carries no usable source IP.
//
// A counter failure degrades to 0 rather than failing the event: a storage
// outage must not stop triage, it only loses the brute-force bonus until the
// store recovers. Every degraded count is logged.
func countAttempts(ctx context.Context, counter AttemptCounter, ev *schema.Event, now time.Time, logger *slog.Logger) int {
	if !isBruteForceEvent(ev.EventName) || !ev.HasKnownSource() {
		return 0
	}

	since := store.WindowStart(now, BruteForceWindow)
	n, err := counter.CountAttempts(ctx, ev.SourceIP, bruteForceEvents, since)
	if err != nil {
		logger.Warn("attempt count unavailable, scoring without brute-force signal",
			"event_id", ev.EventID,
			"source_ip", ev.SourceIP,
			"error", err)
		return 0
	}
	return n
}
