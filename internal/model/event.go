package model

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the platform.
const (
	EventContainerCrashed    = "container.crashed"
	EventContainerOOMKilled  = "container.oom_killed"
	EventDeploySucceeded     = "deploy.succeeded"
	EventDeployFailed        = "deploy.failed"
	EventLoginFailed         = "auth.login_failed"
	EventBruteforceDetected  = "auth.bruteforce_detected"
	EventUpgradeStarted      = "system.upgrade_started"
	EventUpgradeCompleted    = "system.upgrade_completed"
	EventDiskSpaceLow        = "system.disk_space_low"
	EventSecurityIncident    = "security.incident"
	EventCertificateExpiring = "tls.certificate_expiring"
	EventBackupFailed        = "backup.failed"
)

// Event is an ephemeral platform occurrence handed to the dispatcher. Events
// are never persisted themselves; only delivery attempts leave a trace in
// the history.
type Event struct {
	EventType string    `json:"event_type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Metadata  JSONMap   `json:"metadata,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChannelResult is the per-channel slice of a dispatch aggregate.
type ChannelResult struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Channel   string    `json:"channel,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// DispatchResult aggregates the outcome of routing one event through every
// matching rule.
type DispatchResult struct {
	EventType string          `json:"event_type"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Results   []ChannelResult `json:"results"`
}
