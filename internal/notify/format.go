// Package notify delivers escalation alerts to the configured channels.
package notify

import (
	"fmt"
	"strings"

	"aegis-soar/internal/schema"
)

// Alert is a formatted notification ready for delivery.
type Alert struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`

	EventID        string          `json:"event_id"`
	Severity       schema.Severity `json:"severity"`
	EventName      string          `json:"event_name"`
	SourceIP       string          `json:"source_ip"`
	RiskScore      int             `json:"risk_score"`
	FailedAttempts int             `json:"failed_attempts"`
}

const alertRule = "=============================================="

// Format renders a notification message into a deliverable alert.
func Format(msg schema.NotificationMessage) Alert {
	var b strings.Builder
	b.WriteString(alertRule + "\n")
	b.WriteString(" SECURITY ALERT\n")
	b.WriteString(alertRule + "\n")
	fmt.Fprintf(&b, "Event:           %s\n", msg.EventName)
	fmt.Fprintf(&b, "Severity:        %s\n", msg.Severity)
	fmt.Fprintf(&b, "Source IP:       %s\n", msg.SourceIP)
	fmt.Fprintf(&b, "Risk Score:      %d\n", msg.RiskScore)
	fmt.Fprintf(&b, "Failed Attempts: %d\n", msg.FailedAttempts)
	if msg.Analysis != "" {
		fmt.Fprintf(&b, "Analysis:        %s\n", msg.Analysis)
	}
	fmt.Fprintf(&b, "Event ID:        %s\n", msg.EventID)
	b.WriteString(alertRule)

	return Alert{
		Subject:        fmt.Sprintf("Security Alert - %s - %s", msg.Severity, msg.EventName),
		Body:           b.String(),
		EventID:        msg.EventID,
		Severity:       msg.Severity,
		EventName:      msg.EventName,
		SourceIP:       msg.SourceIP,
		RiskScore:      msg.RiskScore,
		FailedAttempts: msg.FailedAttempts,
	}
}
