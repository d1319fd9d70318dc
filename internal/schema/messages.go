package schema

// RemediationMessage is produced by the engine for every event whose risk
// score crosses the remediation threshold. The remediator executes the
// recommended actions verbatim, in order.
type RemediationMessage struct {
	EventID            string   `json:"event_id"`
	EventData          Event    `json:"event_data"`
	RecommendedActions []string `json:"recommended_actions"`
}

// NotificationMessage is produced by the engine only at attempt milestones
// and carries everything the notifier needs to page a human.
type NotificationMessage struct {
	EventID        string   `json:"event_id"`
	Severity       Severity `json:"severity"`
	EventName      string   `json:"event_name"`
	SourceIP       string   `json:"source_ip"`
	Analysis       string   `json:"analysis"`
	RiskScore      int      `json:"risk_score"`
	FailedAttempts int      `json:"failed_attempts"`
}
