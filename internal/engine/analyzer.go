package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"aegis-soar/internal/schema"
)

// Publisher produces one JSON message to a topic. Satisfied by
// *kafka.Producer.
type Publisher interface {
	ProduceJSON(ctx context.Context, key string, value any) error
}

// EventUpdater persists analysis results. Satisfied by *store.EventStore.
type EventUpdater interface {
	MarkAnalyzed(ctx context.Context, eventID string, timestamp int64, riskScore int, severity schema.Severity, analysis string) error
}

// IPChecker reports malicious IP membership. Satisfied by *intel.IPSet.
type IPChecker interface {
	Contains(ip string) bool
}

// Analyzer scores a stream of parsed events and fans out remediation and
// notification messages. Safe for sequential use by one consumer loop.
type Analyzer struct {
	counter         AttemptCounter
	updater         EventUpdater
	remediationOut  Publisher
	notificationOut Publisher
	maliciousIPs    IPChecker
	criticalActions map[string]struct{}
	logger          *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	analyzed  atomic.Int64
	failed    atomic.Int64
	malformed atomic.Int64
	notified  atomic.Int64
	escalated atomic.Int64
}

// AnalyzerConfig wires an Analyzer's collaborators.
type AnalyzerConfig struct {
	Counter         AttemptCounter
	Updater         EventUpdater
	RemediationOut  Publisher
	NotificationOut Publisher
	MaliciousIPs    IPChecker
	CriticalActions []string
	Logger          *slog.Logger
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if cfg.Counter == nil || cfg.Updater == nil {
		return nil, fmt.Errorf("engine: counter and updater are required")
	}
	if cfg.RemediationOut == nil || cfg.NotificationOut == nil {
		return nil, fmt.Errorf("engine: remediation and notification publishers are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		counter:         cfg.Counter,
		updater:         cfg.Updater,
		remediationOut:  cfg.RemediationOut,
		notificationOut: cfg.NotificationOut,
		maliciousIPs:    cfg.MaliciousIPs,
		criticalActions: CriticalActionSet(cfg.CriticalActions),
		logger:          logger,
		now:             time.Now,
	}, nil
}

// BatchResult summarizes one ProcessBatch call.
type BatchResult struct {
	Attempted    int
	Succeeded    int
	Failed       int
	ProcessedIDs []string
}

// ProcessBatch analyzes each payload independently. A malformed or failing
// item never stops the rest of the batch.
func (a *Analyzer) ProcessBatch(ctx context.Context, payloads [][]byte) BatchResult {
	res := BatchResult{Attempted: len(payloads)}
	for _, payload := range payloads {
		id, err := a.ProcessOne(ctx, payload)
		if err != nil {
			res.Failed++
			a.logger.Error("event analysis failed",
				"event_id", id,
				"error", err)
			continue
		}
		res.Succeeded++
		if id != "" {
			res.ProcessedIDs = append(res.ProcessedIDs, id)
		}
	}
	return res
}

// ProcessOne analyzes a single payload. It returns the event ID when one
// could be decoded, even on failure, so callers can log it.
//
// Redelivery of the same payload is safe: the attempt count includes the
// event itself and analysis updates the row in place, so a second pass
// computes the same verdict and overwrites identical values.
func (a *Analyzer) ProcessOne(ctx context.Context, payload []byte) (string, error) {
	var ev schema.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		a.malformed.Add(1)
		a.failed.Add(1)
		return "", fmt.Errorf("decode event: %w", err)
	}
	if ev.EventID == "" {
		a.malformed.Add(1)
		a.failed.Add(1)
		return "", fmt.Errorf("decode event: missing event_id")
	}

	verdict := a.Analyze(ctx, &ev)

	if err := a.updater.MarkAnalyzed(ctx, ev.EventID, ev.Timestamp, verdict.RiskScore, verdict.Severity, verdict.Analysis); err != nil {
		a.failed.Add(1)
		return ev.EventID, fmt.Errorf("persist analysis: %w", err)
	}

	if verdict.RequiresRemediation {
		msg := schema.RemediationMessage{
			EventID:            ev.EventID,
			EventData:          ev,
			RecommendedActions: actionStrings(verdict.Actions),
		}
		msg.EventData.RiskScore = verdict.RiskScore
		msg.EventData.Severity = verdict.Severity
		msg.EventData.Analysis = verdict.Analysis
		msg.EventData.Status = schema.StatusAnalyzed
		if err := a.remediationOut.ProduceJSON(ctx, ev.EventID, msg); err != nil {
			a.failed.Add(1)
			return ev.EventID, fmt.Errorf("produce remediation: %w", err)
		}
		a.escalated.Add(1)
	}

	if verdict.Notify {
		msg := schema.NotificationMessage{
			EventID:        ev.EventID,
			Severity:       verdict.Severity,
			EventName:      ev.EventName,
			SourceIP:       ev.SourceIP,
			Analysis:       verdict.Analysis,
			RiskScore:      verdict.RiskScore,
			FailedAttempts: verdict.FailedAttempts,
		}
		if err := a.notificationOut.ProduceJSON(ctx, ev.EventID, msg); err != nil {
			a.failed.Add(1)
			return ev.EventID, fmt.Errorf("produce notification: %w", err)
		}
		a.notified.Add(1)
	}

	a.analyzed.Add(1)
	return ev.EventID, nil
}

// Analyze computes the verdict for one event without persisting anything.
func (a *Analyzer) Analyze(ctx context.Context, ev *schema.Event) Verdict {
	attempts := countAttempts(ctx, a.counter, ev, a.now(), a.logger)

	_, critical := a.criticalActions[ev.EventName]
	malicious := false
	if a.maliciousIPs != nil && ev.HasKnownSource() {
		malicious = a.maliciousIPs.Contains(ev.SourceIP)
	}

	return Score(Input{
		Event:          ev,
		FailedAttempts: attempts,
		MaliciousIP:    malicious,
		CriticalAction: critical,
	})
}

// Handle adapts ProcessOne to the consumer contract: malformed payloads are
// logged and committed, transient failures are returned so the message is
// redelivered.
func (a *Analyzer) Handle(ctx context.Context, payload []byte) error {
	id, err := a.ProcessOne(ctx, payload)
	if err == nil {
		return nil
	}
	if id == "" {
		a.logger.Error("dropping undecodable event payload", "error", err)
		return nil
	}
	return err
}

// Metrics reports analyzer counters.
type Metrics struct {
	Analyzed  int64 `json:"analyzed"`
	Failed    int64 `json:"failed"`
	Malformed int64 `json:"malformed"`
	Notified  int64 `json:"notified"`
	Escalated int64 `json:"escalated"`
}

// Metrics returns a snapshot of the analyzer counters.
func (a *Analyzer) Metrics() Metrics {
	return Metrics{
		Analyzed:  a.analyzed.Load(),
		Failed:    a.failed.Load(),
		Malformed: a.malformed.Load(),
		Notified:  a.notified.Load(),
		Escalated: a.escalated.Load(),
	}
}
