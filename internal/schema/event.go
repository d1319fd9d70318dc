// Package schema defines the canonical event record for the triage pipeline.
// All inbound signals are normalized to this structure by the parser stage
// before any scoring or remediation happens.
package schema

// UnknownSource is the sentinel used when the origin IP of a signal could
// not be determined. Brute-force counting is skipped for this value.
const UnknownSource = "Unknown"

// Severity is the coarse triage tier attached to an event.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// IsValid checks if the severity is a known tier.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Status is the lifecycle state of an event. Transitions only move forward:
// parsed -> analyzed -> remediated|logged.
type Status string

const (
	StatusParsed     Status = "parsed"
	StatusAnalyzed   Status = "analyzed"
	StatusRemediated Status = "remediated"
	StatusLogged     Status = "logged"
)

// statusRank orders lifecycle states. remediated and logged are terminal
// siblings at the same rank.
func statusRank(s Status) int {
	switch s {
	case StatusParsed:
		return 1
	case StatusAnalyzed:
		return 2
	case StatusRemediated, StatusLogged:
		return 3
	}
	return 0
}

// CanTransition reports whether moving from one status to another respects
// the forward-only lifecycle.
func CanTransition(from, to Status) bool {
	return statusRank(to) > statusRank(from)
}

// Event is the unit of work flowing through the pipeline.
//
// Identity is assigned once at the parser stage and is immutable. The
// storage key is (EventID, Timestamp) where Timestamp is the observed time
// in seconds since epoch, not a processing time.
type Event struct {
	EventID      string            `json:"event_id" validate:"required,max=128"`
	Timestamp    int64             `json:"timestamp" validate:"required,gt=0"`
	EventName    string            `json:"event_name" validate:"required,max=256"`
	EventSource  string            `json:"event_source,omitempty" validate:"max=256"`
	SourceIP     string            `json:"source_ip,omitempty" validate:"max=64"`
	UserIdentity map[string]string `json:"user_identity,omitempty"`
	Severity     Severity          `json:"severity,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	RiskScore    int               `json:"risk_score" validate:"min=0,max=100"`
	Status       Status            `json:"status,omitempty" validate:"omitempty,oneof=parsed analyzed remediated logged"`
	Analysis     string            `json:"analysis,omitempty"`
	Description  string            `json:"description,omitempty" validate:"max=2048"`
	RawEvent     string            `json:"raw_event,omitempty" validate:"max=65536"`
}

// HasKnownSource reports whether the event carries a usable origin IP.
func (e *Event) HasKnownSource() bool {
	return e.SourceIP != "" && e.SourceIP != UnknownSource
}

// Action is a remediation action recommended by the engine and executed by
// the remediator stage.
type Action string

const (
	ActionSuspendUser       Action = "SUSPEND_USER"
	ActionBlockIP           Action = "BLOCK_IP"
	ActionRollbackChanges   Action = "ROLLBACK_CHANGES"
	ActionAlertSecurityTeam Action = "ALERT_SECURITY_TEAM"
)

// IsValid checks if the action is one the remediator knows how to execute.
func (a Action) IsValid() bool {
	switch a {
	case ActionSuspendUser, ActionBlockIP, ActionRollbackChanges, ActionAlertSecurityTeam:
		return true
	}
	return false
}
