// Package engine implements risk scoring and escalation. It consumes parsed
// events, counts recent failed-login attempts per source IP, computes a
// bounded risk score, and fans out remediation and notification messages.
package engine

import (
	"time"

	"aegis-soar/internal/schema"
)

// BruteForceWindow is how far back attempt counting looks.
const BruteForceWindow = 10 * time.Minute

// RemediationThreshold is the minimum risk score that triggers automated
// remediation.
const RemediationThreshold = 60

// bruteForceEvents are the event names counted toward the sliding-window
// attempt total. The set is shared: failures across both names against the
// same source IP accumulate together.
var bruteForceEvents = []string{"failed_login", "web_login_failed"}

// notificationMilestones are the exact attempt counts that page a human.
// Edge-triggered so a sustained attack produces a handful of notifications
// rather than one per event.
var notificationMilestones = map[int]struct{}{
	3: {}, 5: {}, 10: {}, 15: {}, 20: {},
}

// defaultCriticalActions are control-plane operations that weaken audit or
// identity posture and earn a flat score bonus regardless of severity.
var defaultCriticalActions = []string{
	"StopLogging",
	"DeleteTrail",
	"DeleteBucket",
	"PutUserPolicy",
	"DeactivateMFADevice",
}

// baseScores maps reported severity to the starting risk score.
var baseScores = map[schema.Severity]int{
	schema.SeverityHigh:   70,
	schema.SeverityMedium: 40,
	schema.SeverityLow:    10,
}

const (
	maliciousIPBonus    = 20
	criticalActionBonus = 15
)

// bruteForceBonus returns the score bonus for the observed attempt count
// and whether the count forces the severity to HIGH.
func bruteForceBonus(attempts int) (bonus int, escalate bool) {
	switch {
	case attempts >= 10:
		return 70, true
	case attempts >= 5:
		return 50, true
	case attempts >= 3:
		return 30, true
	case attempts >= 1:
		return 5, false
	default:
		return 0, false
	}
}

// isBruteForceEvent reports whether name is in the tracked attempt set.
func isBruteForceEvent(name string) bool {
	for _, n := range bruteForceEvents {
		if n == name {
			return true
		}
	}
	return false
}

// isMilestone reports whether attempts is exactly one of the notification
// milestones.
func isMilestone(attempts int) bool {
	_, ok := notificationMilestones[attempts]
	return ok
}

// CriticalActionSet builds the critical action lookup from configuration,
// falling back to the built-in set when none is configured.
func CriticalActionSet(configured []string) map[string]struct{} {
	names := configured
	if len(names) == 0 {
		names = defaultCriticalActions
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
