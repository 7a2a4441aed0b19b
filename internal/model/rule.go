package model

import (
	"github.com/google/uuid"
)

// Rule binds an event type to a channel. The pair (event_type, channel_id)
// is unique; CooldownMinutes of zero disables cooldown suppression for the
// rule.
type Rule struct {
	Base
	EventType       string    `json:"event_type" db:"event_type"`
	ChannelID       uuid.UUID `json:"channel_id" db:"channel_id"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	MinSeverity     Severity  `json:"min_severity" db:"min_severity"`
	CooldownMinutes int       `json:"cooldown_minutes" db:"cooldown_minutes"`
}

// RuleMatrix maps event types to the rules configured for them. It backs the
// admin overview of which events reach which channels.
type RuleMatrix map[string][]*Rule
