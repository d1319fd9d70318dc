package remediate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"aegis-soar/internal/kafka"
	"aegis-soar/internal/schema"
)

// EventFinalizer persists the terminal status. Satisfied by
// *store.EventStore.
type EventFinalizer interface {
	MarkRemediated(ctx context.Context, eventID string, timestamp int64, status schema.Status) error
}

// Remediator consumes remediation messages and executes the recommended
// actions in order.
type Remediator struct {
	executors map[schema.Action]Executor
	finalizer EventFinalizer
	logger    *slog.Logger

	remediated atomic.Int64
	logged     atomic.Int64
	skipped    atomic.Int64
	dropped    atomic.Int64
}

// New builds a Remediator from an executor list.
func New(executors []Executor, finalizer EventFinalizer, logger *slog.Logger) (*Remediator, error) {
	if finalizer == nil {
		return nil, fmt.Errorf("remediate: finalizer is required")
	}
	registry := make(map[schema.Action]Executor, len(executors))
	for _, ex := range executors {
		registry[ex.Action()] = ex
	}
	return &Remediator{
		executors: registry,
		finalizer: finalizer,
		logger:    logger,
	}, nil
}

// Handle is the consumer handler for the remediation topic. Actions run in
// the recommended order; unknown actions and executor failures are recorded
// and skipped, never fatal. The terminal status depends on whether anything
// actually executed.
//
// Redelivery repeats the actions, which is safe: every executor is
// idempotent (blocklist membership, log records) and MarkRemediated refuses
// to move a terminal row.
func (r *Remediator) Handle(ctx context.Context, msg kafka.Message) error {
	var rm schema.RemediationMessage
	if err := json.Unmarshal(msg.Value, &rm); err != nil {
		r.dropped.Add(1)
		r.logger.Error("dropping undecodable remediation message",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err)
		return nil
	}
	if rm.EventID == "" {
		r.dropped.Add(1)
		r.logger.Error("dropping remediation message without event id")
		return nil
	}

	ev := rm.EventData
	executed := 0

	for _, name := range rm.RecommendedActions {
		action := schema.Action(name)
		ex, ok := r.executors[action]
		if !ok {
			r.skipped.Add(1)
			r.logger.Warn("skipping unknown remediation action",
				"event_id", rm.EventID,
				"action", name)
			continue
		}

		if err := ex.Execute(ctx, &ev); err != nil {
			r.skipped.Add(1)
			r.logger.Error("remediation action failed",
				"event_id", rm.EventID,
				"action", name,
				"error", err)
			continue
		}
		executed++
	}

	status := schema.StatusLogged
	if executed > 0 {
		status = schema.StatusRemediated
	}

	if err := r.finalizer.MarkRemediated(ctx, rm.EventID, ev.Timestamp, status); err != nil {
		return fmt.Errorf("finalize event %s: %w", rm.EventID, err)
	}

	if status == schema.StatusRemediated {
		r.remediated.Add(1)
	} else {
		r.logged.Add(1)
	}

	r.logger.Info("remediation complete",
		"event_id", rm.EventID,
		"status", status,
		"actions_executed", executed,
		"actions_recommended", len(rm.RecommendedActions))
	return nil
}

// Metrics reports remediator counters.
type Metrics struct {
	Remediated     int64 `json:"remediated"`
	Logged         int64 `json:"logged"`
	ActionsSkipped int64 `json:"actions_skipped"`
	Dropped        int64 `json:"dropped"`
}

// Metrics returns a snapshot of the remediator counters.
func (r *Remediator) Metrics() Metrics {
	return Metrics{
		Remediated:     r.remediated.Load(),
		Logged:         r.logged.Load(),
		ActionsSkipped: r.skipped.Load(),
		Dropped:        r.dropped.Load(),
	}
}
