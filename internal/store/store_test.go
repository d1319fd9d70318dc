package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aegis-soar/internal/schema"
)

func TestStoreErrorWrapping(t *testing.T) {
	err := wrapQueryError("CountAttempts", eventsTable, errors.New("socket closed"))

	if !IsRetryable(err) {
		t.Error("query errors should be retryable")
	}
	if IsNotFound(err) {
		t.Error("query error should not be not-found")
	}

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatal("expected *StoreError")
	}
	if se.Op != "CountAttempts" || se.Table != eventsTable {
		t.Errorf("StoreError = %+v, want op/table preserved", se)
	}
	if !strings.Contains(err.Error(), "CountAttempts") {
		t.Errorf("Error() = %q, should mention operation", err.Error())
	}
}

func TestNotFoundError(t *testing.T) {
	err := wrapNotFound("GetByID", eventsTable, "abc-123")

	if !IsNotFound(err) {
		t.Error("expected not-found")
	}
	if IsRetryable(err) {
		t.Error("not-found must not be retryable")
	}
}

func TestMarkRemediatedRejectsNonTerminalStatus(t *testing.T) {
	s := &EventStore{}
	err := s.MarkRemediated(context.Background(), "id", 1, schema.StatusAnalyzed)
	if err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Unix(1700000600, 0)
	if got := WindowStart(now, 600*time.Second); got != 1700000000 {
		t.Errorf("WindowStart = %d, want 1700000000", got)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}

	first := migrations[0]
	if first.Version != 1 {
		t.Errorf("first migration version = %d, want 1", first.Version)
	}
	if !strings.Contains(first.SQL, "CREATE TABLE IF NOT EXISTS events") {
		t.Error("migration 1 should create the events table")
	}
	if strings.Contains(first.SQL, "--") {
		t.Error("comments should be stripped before statement splitting")
	}
	if !strings.Contains(first.SQL, "PRIMARY KEY (source_ip, event_name, timestamp)") {
		t.Error("events table must be keyed for windowed attempt counting")
	}
}

func TestScanEvent(t *testing.T) {
	fakeScan := func(dest ...any) error {
		*dest[0].(*string) = "ev-1"
		*dest[1].(*int64) = 1700000000
		*dest[2].(*string) = "failed_login"
		*dest[3].(*string) = "ssh"
		*dest[4].(*string) = "10.0.0.5"
		*dest[5].(*map[string]string) = map[string]string{"username": "root"}
		*dest[6].(*string) = "HIGH"
		*dest[7].(*uint8) = 70
		*dest[8].(*string) = "analyzed"
		*dest[9].(*string) = "brute force suspected"
		*dest[10].(*string) = "failed ssh login"
		*dest[11].(*string) = "{}"
		return nil
	}

	ev, err := scanEvent(fakeScan)
	if err != nil {
		t.Fatalf("scanEvent() error = %v", err)
	}

	if ev.EventID != "ev-1" || ev.RiskScore != 70 {
		t.Errorf("scanEvent() = %+v, want ev-1 with score 70", ev)
	}
	if ev.Severity != schema.SeverityHigh || ev.Status != schema.StatusAnalyzed {
		t.Errorf("severity/status = %s/%s, want HIGH/analyzed", ev.Severity, ev.Status)
	}
	if ev.UserIdentity["username"] != "root" {
		t.Error("user identity should be preserved")
	}
}
