package rule

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/repository"
	"github.com/berth-ops/notify-api/internal/service/dispatch"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/logger"
)

type RuleServicer interface {
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id uuid.UUID) (*model.Rule, error)
	ListRules(ctx context.Context) ([]*model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
	Matrix(ctx context.Context) (model.RuleMatrix, error)
}

type Service struct {
	repo     repository.RuleRepository
	channels repository.ChannelRepository
	cache    *dispatch.Cache
	logger   *logger.Logger
}

func NewService(repo repository.RuleRepository, channels repository.ChannelRepository, cache *dispatch.Cache, logger *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		channels: channels,
		cache:    cache,
		logger:   logger,
	}
}

// CreateRule persists a routing rule. The target channel must exist and
// each (event type, channel) pair can only carry one rule.
func (s *Service) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if _, err := s.channels.Get(ctx, rule.ChannelID); err != nil {
		return fmt.Errorf("failed to resolve rule channel: %w", err)
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	s.invalidate()
	s.logger.Info("rule created",
		"rule_id", rule.ID.String(),
		"event_type", rule.EventType,
		"channel_id", rule.ChannelID.String())
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	rule, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context) ([]*model.Rule, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

func (s *Service) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if _, err := s.channels.Get(ctx, rule.ChannelID); err != nil {
		return fmt.Errorf("failed to resolve rule channel: %w", err)
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	s.invalidate()
	s.logger.Info("rule updated", "rule_id", rule.ID.String())
	return nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	s.invalidate()
	s.logger.Info("rule deleted", "rule_id", id.String())
	return nil
}

// Matrix returns every rule grouped by event type, the shape the panel's
// notification settings page renders.
func (s *Service) Matrix(ctx context.Context) (model.RuleMatrix, error) {
	matrix, err := s.repo.Matrix(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule matrix: %w", err)
	}
	return matrix, nil
}

func (s *Service) validateRule(rule *model.Rule) error {
	if rule.EventType == "" {
		return apperrors.NewBadRequest("event_type is required", nil)
	}
	if rule.ChannelID == uuid.Nil {
		return apperrors.NewBadRequest("channel_id is required", nil)
	}
	if rule.MinSeverity == "" {
		rule.MinSeverity = model.SeverityInfo
	}
	if !rule.MinSeverity.Valid() {
		return apperrors.NewBadRequest(fmt.Sprintf("invalid min_severity: %s", rule.MinSeverity), nil)
	}
	if rule.CooldownMinutes < 0 {
		return apperrors.NewBadRequest("cooldown_minutes must not be negative", nil)
	}
	return nil
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.InvalidateRules()
	}
}
