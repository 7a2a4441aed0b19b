package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/repository"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/metrics"
)

type HistoryServicer interface {
	Append(ctx context.Context, entry *model.HistoryEntry) error
	Update(ctx context.Context, id uuid.UUID, fields model.HistoryUpdate) error
	WasRecentlyNotified(ctx context.Context, eventType string, channelID uuid.UUID, cooldownMinutes int) bool
	List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryEntry, error)
}

type Service struct {
	repo    repository.HistoryRepository
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewService(repo repository.HistoryRepository, m *metrics.Metrics, logger *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// Append records a new delivery attempt. The repository assigns the entry
// id and creation time.
func (s *Service) Append(ctx context.Context, entry *model.HistoryEntry) error {
	err := s.observe(ctx, "history_create", func(ctx context.Context) error {
		return s.repo.Create(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	return nil
}

// Update applies a partial update to an existing entry.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fields model.HistoryUpdate) error {
	err := s.observe(ctx, "history_update", func(ctx context.Context) error {
		return s.repo.Update(ctx, id, fields)
	})
	if err != nil {
		return fmt.Errorf("failed to update history entry: %w", err)
	}
	return nil
}

// WasRecentlyNotified reports whether a successful delivery for this
// event/channel pair landed inside the cooldown window. A zero or negative
// cooldown never suppresses. Storage errors degrade open: an unreadable
// history must not swallow notifications, so the caller proceeds.
func (s *Service) WasRecentlyNotified(ctx context.Context, eventType string, channelID uuid.UUID, cooldownMinutes int) bool {
	if cooldownMinutes <= 0 {
		return false
	}

	var sent bool
	err := s.observe(ctx, "history_cooldown", func(ctx context.Context) error {
		var err error
		sent, err = s.repo.WasRecentlySent(ctx, eventType, channelID, time.Duration(cooldownMinutes)*time.Minute)
		return err
	})
	if err != nil {
		s.logger.Warn("cooldown check failed, notifying anyway",
			"event_type", eventType,
			"channel_id", channelID.String(),
			"error", err.Error())
		return false
	}
	return sent
}

// List returns history entries matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryEntry, error) {
	var entries []*model.HistoryEntry
	err := s.observe(ctx, "history_list", func(ctx context.Context) error {
		var err error
		entries, err = s.repo.List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

func (s *Service) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)

	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
		s.metrics.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	return err
}
