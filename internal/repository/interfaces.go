package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
)

// All repository interfaces in one file
type (
	// ChannelRepository handles notification channel storage
	ChannelRepository interface {
		Create(ctx context.Context, channel *model.Channel) error
		Get(ctx context.Context, id uuid.UUID) (*model.Channel, error)
		List(ctx context.Context) ([]*model.Channel, error)
		Update(ctx context.Context, channel *model.Channel) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// RuleRepository handles notification rule storage
	RuleRepository interface {
		Create(ctx context.Context, rule *model.Rule) error
		Get(ctx context.Context, id uuid.UUID) (*model.Rule, error)
		List(ctx context.Context) ([]*model.Rule, error)
		ListByEvent(ctx context.Context, eventType string) ([]*model.Rule, error)
		Matrix(ctx context.Context) (model.RuleMatrix, error)
		Update(ctx context.Context, rule *model.Rule) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// HistoryRepository handles delivery history storage
	HistoryRepository interface {
		Create(ctx context.Context, entry *model.HistoryEntry) error
		Update(ctx context.Context, id uuid.UUID, fields model.HistoryUpdate) error
		WasRecentlySent(ctx context.Context, eventType string, channelID uuid.UUID, within time.Duration) (bool, error)
		List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryEntry, error)
	}
)
