package channel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/provider"
	"github.com/berth-ops/notify-api/internal/repository"
	"github.com/berth-ops/notify-api/internal/secrets"
	"github.com/berth-ops/notify-api/internal/service/dispatch"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/logger"
)

type ChannelServicer interface {
	CreateChannel(ctx context.Context, channel *model.Channel) error
	GetChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	ListChannels(ctx context.Context) ([]*model.Channel, error)
	UpdateChannel(ctx context.Context, channel *model.Channel) error
	DeleteChannel(ctx context.Context, id uuid.UUID) error
	TestChannel(ctx context.Context, id uuid.UUID, recipient string) (*provider.Result, error)
	Providers() []model.Provider
}

// ProviderRegistry is the slice of *provider.Registry the admin surface
// needs.
type ProviderRegistry interface {
	ValidateConfig(p model.Provider, cfg model.JSONMap) error
	Test(ctx context.Context, p model.Provider, cfg model.JSONMap, recipient string) *provider.Result
	Providers() []model.Provider
}

type Service struct {
	repo     repository.ChannelRepository
	rules    repository.RuleRepository
	registry ProviderRegistry
	secrets  *secrets.Resolver
	cache    *dispatch.Cache
	logger   *logger.Logger
}

func NewService(repo repository.ChannelRepository, rules repository.RuleRepository, registry ProviderRegistry, resolver *secrets.Resolver, cache *dispatch.Cache, logger *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		rules:    rules,
		registry: registry,
		secrets:  resolver,
		cache:    cache,
		logger:   logger,
	}
}

// CreateChannel validates the provider config, encrypts its sensitive
// fields and persists the channel. On return the channel carries its
// assigned id and a masked config, safe to hand back to the client.
func (s *Service) CreateChannel(ctx context.Context, channel *model.Channel) error {
	if !channel.Provider.Valid() {
		return apperrors.NewBadRequest(fmt.Sprintf("unsupported provider: %s", channel.Provider), nil)
	}
	if err := s.registry.ValidateConfig(channel.Provider, channel.Config); err != nil {
		return err
	}

	encrypted, err := s.secrets.EncryptConfig(channel.Provider, channel.Config)
	if err != nil {
		return apperrors.NewInternal(fmt.Errorf("failed to encrypt channel config: %w", err))
	}

	stored := *channel
	stored.Config = encrypted
	if err := s.repo.Create(ctx, &stored); err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	channel.ID = stored.ID
	channel.CreatedAt = stored.CreatedAt
	channel.UpdatedAt = stored.UpdatedAt
	channel.Config = secrets.MaskConfig(channel.Provider, channel.Config)

	s.logger.Info("channel created",
		"channel_id", channel.ID.String(),
		"name", channel.Name,
		"provider", string(channel.Provider))
	return nil
}

func (s *Service) GetChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	channel, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	channel.Config = secrets.MaskConfig(channel.Provider, channel.Config)
	return channel, nil
}

func (s *Service) ListChannels(ctx context.Context) ([]*model.Channel, error) {
	channels, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	for _, channel := range channels {
		channel.Config = secrets.MaskConfig(channel.Provider, channel.Config)
	}
	return channels, nil
}

// UpdateChannel applies name, enabled flag and config changes. The
// provider is fixed at creation and always taken from the stored row.
// Config fields submitted as the mask placeholder keep their stored
// secrets; everything else replaces the stored value.
func (s *Service) UpdateChannel(ctx context.Context, channel *model.Channel) error {
	stored, err := s.repo.Get(ctx, channel.ID)
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	channel.Provider = stored.Provider

	merged := secrets.MergeMasked(stored.Provider, channel.Config, stored.Config)
	plain := s.secrets.DecryptConfig(stored.Provider, merged)
	if err := s.registry.ValidateConfig(stored.Provider, plain); err != nil {
		return err
	}

	encrypted, err := s.secrets.EncryptConfig(stored.Provider, plain)
	if err != nil {
		return apperrors.NewInternal(fmt.Errorf("failed to encrypt channel config: %w", err))
	}

	update := *channel
	update.Config = encrypted
	if err := s.repo.Update(ctx, &update); err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}

	channel.CreatedAt = stored.CreatedAt
	channel.UpdatedAt = update.UpdatedAt
	channel.Config = secrets.MaskConfig(stored.Provider, plain)

	if s.cache != nil {
		s.cache.InvalidateChannel(channel.ID)
	}
	s.logger.Info("channel updated",
		"channel_id", channel.ID.String(),
		"name", channel.Name)
	return nil
}

// DeleteChannel removes a channel. Deletion is rejected with a conflict
// while notification rules still reference it; on postgres the foreign
// key backstops this check.
func (s *Service) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	for _, rule := range rules {
		if rule.ChannelID == id {
			return apperrors.NewConflict("channel is referenced by notification rules", nil)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateChannel(id)
	}
	s.logger.Info("channel deleted", "channel_id", id.String())
	return nil
}

// TestChannel sends a canned message through the channel's adapter with
// decrypted config. The error covers channel lookup only; delivery
// problems land in the result.
func (s *Service) TestChannel(ctx context.Context, id uuid.UUID, recipient string) (*provider.Result, error) {
	channel, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	plain := s.secrets.DecryptConfig(channel.Provider, channel.Config)
	return s.registry.Test(ctx, channel.Provider, plain, recipient), nil
}

// Providers lists the supported provider identifiers.
func (s *Service) Providers() []model.Provider {
	return s.registry.Providers()
}
