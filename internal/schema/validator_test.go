package schema

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func validEvent() *Event {
	return &Event{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Unix(),
		EventName: "failed_login",
		SourceIP:  "10.0.0.5",
		Severity:  SeverityLow,
		Status:    StatusParsed,
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	t.Run("valid event", func(t *testing.T) {
		if err := v.Validate(validEvent()); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("missing event_id", func(t *testing.T) {
		ev := validEvent()
		ev.EventID = ""
		if err := v.Validate(ev); err == nil {
			t.Error("Validate() expected error for missing event_id")
		}
	})

	t.Run("missing event_name", func(t *testing.T) {
		ev := validEvent()
		ev.EventName = ""
		if err := v.Validate(ev); err == nil {
			t.Error("Validate() expected error for missing event_name")
		}
	})

	t.Run("invalid severity", func(t *testing.T) {
		ev := validEvent()
		ev.Severity = "CRITICAL"
		if err := v.Validate(ev); err == nil {
			t.Error("Validate() expected error for unknown severity")
		}
	})

	t.Run("risk score above bound", func(t *testing.T) {
		ev := validEvent()
		ev.RiskScore = 101
		if err := v.Validate(ev); err == nil {
			t.Error("Validate() expected error for risk_score > 100")
		}
	})

	t.Run("timestamp too old", func(t *testing.T) {
		ev := validEvent()
		ev.Timestamp = time.Now().Add(-60 * 24 * time.Hour).Unix()
		if err := v.Validate(ev); err == nil {
			t.Error("Validate() expected error for stale timestamp")
		}
	})

	t.Run("timestamp in future", func(t *testing.T) {
		ev := validEvent()
		ev.Timestamp = time.Now().Add(time.Hour).Unix()
		if err := v.Validate(ev); err == nil {
			t.Error("Validate() expected error for future timestamp")
		}
	})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusParsed, StatusAnalyzed, true},
		{StatusAnalyzed, StatusRemediated, true},
		{StatusAnalyzed, StatusLogged, true},
		{StatusParsed, StatusRemediated, true},
		{StatusAnalyzed, StatusParsed, false},
		{StatusRemediated, StatusAnalyzed, false},
		{StatusLogged, StatusRemediated, false},
		{StatusAnalyzed, StatusAnalyzed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSeverityIsValid(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh} {
		if !s.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", s)
		}
	}
	if Severity("critical").IsValid() {
		t.Error(`Severity("critical").IsValid() = true, want false`)
	}
}

func TestActionIsValid(t *testing.T) {
	for _, a := range []Action{ActionSuspendUser, ActionBlockIP, ActionRollbackChanges, ActionAlertSecurityTeam} {
		if !a.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", a)
		}
	}
	if Action("REBOOT_EVERYTHING").IsValid() {
		t.Error("unknown action should not validate")
	}
}
