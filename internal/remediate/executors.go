// Package remediate executes the actions recommended by the risk engine and
// finalizes the event lifecycle.
package remediate

import (
	"context"
	"fmt"
	"log/slog"

	"aegis-soar/internal/schema"
)

// Executor carries out one remediation action.
type Executor interface {
	Action() schema.Action
	Execute(ctx context.Context, ev *schema.Event) error
}

// IPBlocker adds an IP to the shared blocklist. Satisfied by
// *intel.Blocklist.
type IPBlocker interface {
	Block(ctx context.Context, ip string) error
}

// BlockIPExecutor writes the event's source IP to the blocklist, so the
// intake starts rejecting it.
type BlockIPExecutor struct {
	blocker IPBlocker
	logger  *slog.Logger
}

// NewBlockIPExecutor creates the BLOCK_IP executor.
func NewBlockIPExecutor(blocker IPBlocker, logger *slog.Logger) *BlockIPExecutor {
	return &BlockIPExecutor{blocker: blocker, logger: logger}
}

func (e *BlockIPExecutor) Action() schema.Action {
	return schema.ActionBlockIP
}

func (e *BlockIPExecutor) Execute(ctx context.Context, ev *schema.Event) error {
	if !ev.HasKnownSource() {
		return fmt.Errorf("no usable source IP on event %s", ev.EventID)
	}
	if err := e.blocker.Block(ctx, ev.SourceIP); err != nil {
		return fmt.Errorf("block %s: %w", ev.SourceIP, err)
	}
	e.logger.Info("blocked source IP",
		"event_id", ev.EventID,
		"source_ip", ev.SourceIP)
	return nil
}

// SuspendUserExecutor records the suspension decision. Account suspension
// in the identity provider happens out of band; the audit trail lives here.
type SuspendUserExecutor struct {
	logger *slog.Logger
}

// NewSuspendUserExecutor creates the SUSPEND_USER executor.
func NewSuspendUserExecutor(logger *slog.Logger) *SuspendUserExecutor {
	return &SuspendUserExecutor{logger: logger}
}

func (e *SuspendUserExecutor) Action() schema.Action {
	return schema.ActionSuspendUser
}

func (e *SuspendUserExecutor) Execute(_ context.Context, ev *schema.Event) error {
	username := ev.UserIdentity["username"]
	if username == "" {
		username = "unknown"
	}
	e.logger.Warn("user suspension requested",
		"event_id", ev.EventID,
		"username", username)
	return nil
}

// RollbackExecutor records the rollback decision for the audit trail.
type RollbackExecutor struct {
	logger *slog.Logger
}

// NewRollbackExecutor creates the ROLLBACK_CHANGES executor.
func NewRollbackExecutor(logger *slog.Logger) *RollbackExecutor {
	return &RollbackExecutor{logger: logger}
}

func (e *RollbackExecutor) Action() schema.Action {
	return schema.ActionRollbackChanges
}

func (e *RollbackExecutor) Execute(_ context.Context, ev *schema.Event) error {
	e.logger.Warn("change rollback requested",
		"event_id", ev.EventID,
		"event_name", ev.EventName)
	return nil
}

// AlertTeamExecutor records that the team was alerted. The actual page goes
// through the notifier stage.
type AlertTeamExecutor struct {
	logger *slog.Logger
}

// NewAlertTeamExecutor creates the ALERT_SECURITY_TEAM executor.
func NewAlertTeamExecutor(logger *slog.Logger) *AlertTeamExecutor {
	return &AlertTeamExecutor{logger: logger}
}

func (e *AlertTeamExecutor) Action() schema.Action {
	return schema.ActionAlertSecurityTeam
}

func (e *AlertTeamExecutor) Execute(_ context.Context, ev *schema.Event) error {
	e.logger.Info("security team alerted",
		"event_id", ev.EventID,
		"event_name", ev.EventName)
	return nil
}

// DefaultExecutors builds the standard registry. blocker may be nil, in
// which case BLOCK_IP is left unregistered and treated as unknown.
func DefaultExecutors(blocker IPBlocker, logger *slog.Logger) []Executor {
	executors := []Executor{
		NewSuspendUserExecutor(logger),
		NewRollbackExecutor(logger),
		NewAlertTeamExecutor(logger),
	}
	if blocker != nil {
		executors = append(executors, NewBlockIPExecutor(blocker, logger))
	}
	return executors
}
