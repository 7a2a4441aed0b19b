package model

import (
	"time"

	"github.com/google/uuid"
)

type HistoryStatus string

const (
	HistoryStatusPending  HistoryStatus = "pending"
	HistoryStatusSent     HistoryStatus = "sent"
	HistoryStatusFailed   HistoryStatus = "failed"
	HistoryStatusRetrying HistoryStatus = "retrying"
)

// HistoryEntry records one delivery attempt chain for a single channel. An
// entry is created pending before the first attempt and updated in place as
// the attempt progresses; RetryCount counts attempts beyond the first.
type HistoryEntry struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	EventType  string        `json:"event_type" db:"event_type"`
	ChannelID  uuid.UUID     `json:"channel_id" db:"channel_id"`
	Severity   Severity      `json:"severity" db:"severity"`
	Message    string        `json:"message" db:"message"`
	Status     HistoryStatus `json:"status" db:"status"`
	Error      *string       `json:"error,omitempty" db:"error"`
	RetryCount int           `json:"retry_count" db:"retry_count"`
	SentAt     *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// HistoryUpdate carries the mutable fields of a history entry. Nil fields
// are left untouched by an update.
type HistoryUpdate struct {
	Status     *HistoryStatus
	Error      *string
	RetryCount *int
	SentAt     *time.Time
}

// HistoryFilter narrows history listings.
type HistoryFilter struct {
	EventType string        `form:"event_type"`
	ChannelID uuid.UUID     `form:"channel_id"`
	Status    HistoryStatus `form:"status"`
	Limit     int           `form:"limit"`
	Offset    int           `form:"offset"`
}
