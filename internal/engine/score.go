package engine

import (
	"fmt"
	"strings"

	"aegis-soar/internal/schema"
)

// Input is everything Score needs to judge one event. FailedAttempts
// includes the event under analysis; MaliciousIP reflects the intel
// snapshot at analysis time.
type Input struct {
	Event          *schema.Event
	FailedAttempts int
	MaliciousIP    bool
	CriticalAction bool
}

// Verdict is the full outcome of scoring one event.
type Verdict struct {
	RiskScore           int
	Severity            schema.Severity
	FailedAttempts      int
	RequiresRemediation bool
	Notify              bool
	Actions             []schema.Action
	Analysis            string
}

// Score computes the verdict for one event. Pure: no I/O, no clock, fully
// determined by its input.
func Score(in Input) Verdict {
	ev := in.Event
	severity := ev.Severity
	score := baseScores[severity]

	var reasons []string
	reasons = append(reasons, fmt.Sprintf("base severity %s", severity))

	bonus, escalate := bruteForceBonus(in.FailedAttempts)
	if isBruteForceEvent(ev.EventName) && in.FailedAttempts > 0 {
		score += bonus
		reasons = append(reasons, fmt.Sprintf("%d failed attempts from %s in window", in.FailedAttempts, ev.SourceIP))
		if escalate {
			severity = schema.SeverityHigh
		}
	}

	if in.MaliciousIP {
		score += maliciousIPBonus
		reasons = append(reasons, fmt.Sprintf("source %s on malicious IP list", ev.SourceIP))
	}

	if in.CriticalAction {
		score += criticalActionBonus
		reasons = append(reasons, fmt.Sprintf("critical action %s", ev.EventName))
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	v := Verdict{
		RiskScore:           score,
		Severity:            severity,
		FailedAttempts:      in.FailedAttempts,
		RequiresRemediation: score >= RemediationThreshold,
		Analysis:            fmt.Sprintf("risk %d: %s", score, strings.Join(reasons, "; ")),
	}
	v.Notify = v.Severity == schema.SeverityHigh &&
		isBruteForceEvent(ev.EventName) &&
		isMilestone(in.FailedAttempts)
	v.Actions = recommendActions(ev, v, in)
	return v
}

// recommendActions builds the ordered, deduplicated action list for a
// verdict that crosses the remediation threshold.
func recommendActions(ev *schema.Event, v Verdict, in Input) []schema.Action {
	if !v.RequiresRemediation {
		return nil
	}

	var actions []schema.Action
	add := func(a schema.Action) {
		for _, existing := range actions {
			if existing == a {
				return
			}
		}
		actions = append(actions, a)
	}

	if in.CriticalAction {
		add(schema.ActionRollbackChanges)
		add(schema.ActionSuspendUser)
	}
	if isBruteForceEvent(ev.EventName) && in.FailedAttempts >= 3 && ev.HasKnownSource() {
		add(schema.ActionBlockIP)
		add(schema.ActionSuspendUser)
	}
	if in.MaliciousIP && ev.HasKnownSource() {
		add(schema.ActionBlockIP)
	}
	add(schema.ActionAlertSecurityTeam)
	return actions
}

// actionStrings converts the verdict's action list for the wire message.
func actionStrings(actions []schema.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
