// Package provider contains the delivery adapters that turn a dispatched
// event into a message on a concrete channel: SMTP, Resend, Discord,
// Telegram and Slack. Adapters classify failures so the dispatcher can
// tell terminal misconfiguration apart from transient delivery trouble.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/validator"
)

// Message is the rendered notification handed to an adapter. Recipients
// overrides the channel's configured recipient list when set; only test
// deliveries use it.
type Message struct {
	EventType  string
	Severity   model.Severity
	Title      string
	Body       string
	Timestamp  time.Time
	Metadata   model.JSONMap
	Recipients []string
}

// NewMessage renders an event into provider-neutral message content.
func NewMessage(evt *model.Event) *Message {
	return &Message{
		EventType: evt.EventType,
		Severity:  evt.Severity,
		Title:     fmt.Sprintf("[%s] %s", severityLabel(evt.Severity), evt.EventType),
		Body:      evt.Message,
		Timestamp: evt.Timestamp,
		Metadata:  evt.Metadata,
	}
}

// Result captures the outcome of a single Send or Test call. Err keeps the
// original classified error so callers can decide on retries; Message is
// already redacted and safe to persist or log.
type Result struct {
	Success   bool
	Message   string
	Err       error
	Timestamp time.Time
}

// Adapter is implemented once per supported provider. Send and Test must
// honor ctx cancellation; ValidateConfig must not perform any network IO.
type Adapter interface {
	Provider() model.Provider
	ValidateConfig(cfg model.JSONMap) error
	Send(ctx context.Context, cfg model.JSONMap, msg *Message) error
	Test(ctx context.Context, cfg model.JSONMap, recipient string) error
}

// decodeConfig maps a stored channel config onto a provider's typed config
// struct and validates it. Validation failures are terminal bad requests,
// never retried.
func decodeConfig(cfg model.JSONMap, out interface{}) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return apperrors.NewBadRequest(fmt.Sprintf("invalid channel config: %v", err), err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewBadRequest(fmt.Sprintf("invalid channel config: %v", err), err)
	}
	if err := validator.Validate(out); err != nil {
		return apperrors.NewBadRequest(fmt.Sprintf("invalid channel config: %v", err), err)
	}
	return nil
}

// severityLabel renders a severity for subjects and message headers.
func severityLabel(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "CRITICAL"
	case model.SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

type metadataField struct {
	Key   string
	Value string
}

// metadataFields flattens message metadata into sorted key/value pairs so
// rendered messages are deterministic.
func metadataFields(md model.JSONMap) []metadataField {
	if len(md) == 0 {
		return nil
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]metadataField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, metadataField{Key: k, Value: fmt.Sprintf("%v", md[k])})
	}
	return fields
}
