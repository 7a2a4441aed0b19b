// Package dispatch routes platform events through the notification rules
// to their channels: gate evaluation, concurrent fan-out, delivery with
// bounded retries and attempt-by-attempt history recording.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/provider"
	"github.com/berth-ops/notify-api/internal/repository"
	"github.com/berth-ops/notify-api/internal/secrets"
	"github.com/berth-ops/notify-api/internal/service/history"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/metrics"
	"github.com/berth-ops/notify-api/pkg/retry"
)

// Options bounds the per-channel delivery loop. MaxAttempts counts the
// initial delivery, so 4 attempts with a 2s base yields waits of 2s, 4s
// and 8s between attempts.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CacheTTL    time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		CacheTTL:    time.Minute,
	}
}

// Sender delivers one message through a provider adapter.
// *provider.Registry satisfies it.
type Sender interface {
	Send(ctx context.Context, p model.Provider, cfg model.JSONMap, msg *provider.Message) *provider.Result
}

type Service struct {
	rules    repository.RuleRepository
	channels repository.ChannelRepository
	secrets  *secrets.Resolver
	registry Sender
	history  history.HistoryServicer
	cache    *Cache
	metrics  *metrics.Metrics
	logger   *logger.Logger
	opts     Options
}

func NewService(
	rules repository.RuleRepository,
	channels repository.ChannelRepository,
	resolver *secrets.Resolver,
	registry Sender,
	historySvc history.HistoryServicer,
	cache *Cache,
	m *metrics.Metrics,
	logger *logger.Logger,
	opts Options,
) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}
	return &Service{
		rules:    rules,
		channels: channels,
		secrets:  resolver,
		registry: registry,
		history:  historySvc,
		cache:    cache,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// Cache exposes the dispatcher's cache so admin services can invalidate it
// on channel and rule writes.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Dispatch routes one event to every matching channel and returns the
// aggregate outcome. It never returns an error: a failed delivery is a
// result entry, an unreadable rule set is an empty result with a log line.
// Deliveries to sibling channels run concurrently and are all awaited, so
// the result is complete when Dispatch returns.
func (s *Service) Dispatch(ctx context.Context, event *model.Event) *model.DispatchResult {
	result := &model.DispatchResult{}
	if event == nil {
		return result
	}
	result.EventType = event.EventType

	if event.EventType == "" || !event.Severity.Valid() {
		s.logger.Warn("dropping invalid event",
			"event_type", event.EventType,
			"severity", string(event.Severity))
		return result
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if s.metrics != nil {
		s.metrics.EventsDispatched.WithLabelValues(event.EventType).Inc()
	}

	eligible, skipped := s.EvaluateRules(ctx, event)
	result.Skipped = skipped
	if len(eligible) == 0 {
		return result
	}

	results := make([]model.ChannelResult, len(eligible))
	var wg sync.WaitGroup
	for i, rule := range eligible {
		wg.Add(1)
		go func(i int, rule *model.Rule) {
			defer wg.Done()
			if s.metrics != nil {
				s.metrics.DispatchConcurrent.Inc()
				defer s.metrics.DispatchConcurrent.Dec()
			}
			results[i] = s.deliver(ctx, event, rule)
		}(i, rule)
	}
	wg.Wait()

	result.Results = results
	for _, r := range results {
		if r.Success {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	s.logger.Info("event dispatched",
		"event_type", event.EventType,
		"severity", string(event.Severity),
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result
}

// EvaluateRules fetches the rules for an event type and applies the gates
// in order: rule enabled, severity threshold, cooldown window. It returns
// the surviving rules and the number skipped.
func (s *Service) EvaluateRules(ctx context.Context, event *model.Event) ([]*model.Rule, int) {
	rules, err := s.rulesForEvent(ctx, event.EventType)
	if err != nil {
		s.logger.Error(err, "failed to load rules for event",
			"event_type", event.EventType)
		return nil, 0
	}

	eligible := make([]*model.Rule, 0, len(rules))
	skipped := 0
	for _, rule := range rules {
		gate := ""
		switch {
		case !rule.Enabled:
			gate = "disabled"
		case !event.Severity.AtLeast(rule.MinSeverity):
			gate = "severity"
		case s.history.WasRecentlyNotified(ctx, event.EventType, rule.ChannelID, rule.CooldownMinutes):
			gate = "cooldown"
		}
		if gate != "" {
			skipped++
			if s.metrics != nil {
				s.metrics.DeliveriesSkipped.WithLabelValues(event.EventType, gate).Inc()
			}
			s.logger.Debug("rule skipped",
				"event_type", event.EventType,
				"rule_id", rule.ID.String(),
				"channel_id", rule.ChannelID.String(),
				"gate", gate)
			continue
		}
		eligible = append(eligible, rule)
	}
	return eligible, skipped
}

// deliver runs the full delivery lifecycle for one rule: pending history
// entry, channel resolution, adapter send with retries, terminal status.
func (s *Service) deliver(ctx context.Context, event *model.Event, rule *model.Rule) model.ChannelResult {
	result := model.ChannelResult{ChannelID: rule.ChannelID}

	entry := &model.HistoryEntry{
		EventType: event.EventType,
		ChannelID: rule.ChannelID,
		Severity:  event.Severity,
		Message:   event.Message,
		Status:    model.HistoryStatusPending,
	}
	recorded := true
	if err := s.history.Append(ctx, entry); err != nil {
		recorded = false
		s.logger.Warn("failed to record pending delivery",
			"event_type", event.EventType,
			"channel_id", rule.ChannelID.String(),
			"error", err.Error())
	}

	ch, err := s.channel(ctx, rule.ChannelID)
	if err != nil {
		return s.failTerminal(ctx, entry, recorded, result, event.EventType, "unknown", "channel not found")
	}
	result.Channel = ch.Name
	providerLabel := string(ch.Provider)

	if !ch.Enabled {
		return s.failTerminal(ctx, entry, recorded, result, event.EventType, providerLabel, "channel disabled")
	}

	cfg := s.secrets.DecryptConfig(ch.Provider, ch.Config)
	msg := provider.NewMessage(event)

	retrying := model.HistoryStatusRetrying
	failedAttempts := 0
	retryCfg := retry.Config{
		MaxAttempts: s.opts.MaxAttempts,
		BaseDelay:   s.opts.BaseDelay,
		MaxDelay:    s.opts.MaxDelay,
		Logger:      s.logger,
		OnAttempt: func(attempt int, err error) {
			failedAttempts = attempt
			if !apperrors.IsRetryable(err) || attempt >= s.opts.MaxAttempts {
				return
			}
			if s.metrics != nil {
				s.metrics.DeliveryRetries.WithLabelValues(providerLabel).Inc()
			}
			redacted := provider.Redact(err.Error())
			retryCount := attempt - 1
			s.updateEntry(ctx, entry, recorded, model.HistoryUpdate{
				Status:     &retrying,
				Error:      &redacted,
				RetryCount: &retryCount,
			})
		},
	}

	start := time.Now()
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		res := s.registry.Send(ctx, ch.Provider, cfg, msg)
		if !res.Success {
			return res.Err
		}
		return nil
	})
	if s.metrics != nil {
		s.metrics.DeliveryLatency.WithLabelValues(providerLabel).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		failed := model.HistoryStatusFailed
		redacted := provider.Redact(err.Error())
		retryCount := failedAttempts - 1
		if retryCount < 0 {
			retryCount = 0
		}
		s.updateEntry(ctx, entry, recorded, model.HistoryUpdate{
			Status:     &failed,
			Error:      &redacted,
			RetryCount: &retryCount,
		})
		if s.metrics != nil {
			s.metrics.DeliveriesFailed.WithLabelValues(event.EventType, providerLabel).Inc()
		}
		s.logger.Warn("delivery failed",
			"event_type", event.EventType,
			"channel", ch.Name,
			"provider", providerLabel,
			"retries", retryCount,
			"error", redacted)
		result.Error = redacted
		return result
	}

	sent := model.HistoryStatusSent
	now := time.Now().UTC()
	noError := ""
	retryCount := failedAttempts
	s.updateEntry(ctx, entry, recorded, model.HistoryUpdate{
		Status:     &sent,
		Error:      &noError,
		RetryCount: &retryCount,
		SentAt:     &now,
	})
	if s.metrics != nil {
		s.metrics.DeliveriesSent.WithLabelValues(event.EventType, providerLabel).Inc()
	}
	s.logger.Info("delivery sent",
		"event_type", event.EventType,
		"channel", ch.Name,
		"provider", providerLabel,
		"retries", retryCount)

	result.Success = true
	return result
}

// failTerminal closes out a delivery that never reached the adapter.
func (s *Service) failTerminal(ctx context.Context, entry *model.HistoryEntry, recorded bool, result model.ChannelResult, eventType, providerLabel, reason string) model.ChannelResult {
	failed := model.HistoryStatusFailed
	s.updateEntry(ctx, entry, recorded, model.HistoryUpdate{
		Status: &failed,
		Error:  &reason,
	})
	if s.metrics != nil {
		s.metrics.DeliveriesFailed.WithLabelValues(eventType, providerLabel).Inc()
	}
	s.logger.Warn("delivery failed before send",
		"event_type", eventType,
		"channel_id", entry.ChannelID.String(),
		"reason", reason)
	result.Error = reason
	return result
}

func (s *Service) updateEntry(ctx context.Context, entry *model.HistoryEntry, recorded bool, fields model.HistoryUpdate) {
	if !recorded {
		return
	}
	if err := s.history.Update(ctx, entry.ID, fields); err != nil {
		s.logger.Warn("failed to update history entry",
			"entry_id", entry.ID.String(),
			"error", err.Error())
	}
}

func (s *Service) channel(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	if s.cache != nil {
		if ch, ok := s.cache.channel(id); ok {
			return ch, nil
		}
	}
	ch, err := s.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.setChannel(ch)
	}
	return ch, nil
}

func (s *Service) rulesForEvent(ctx context.Context, eventType string) ([]*model.Rule, error) {
	if s.cache != nil {
		if rules, ok := s.cache.rulesFor(eventType); ok {
			return rules, nil
		}
	}
	rules, err := s.rules.ListByEvent(ctx, eventType)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.setRules(eventType, rules)
	}
	return rules, nil
}
