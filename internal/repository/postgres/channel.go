package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/repository"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

type channelRepository struct {
	BaseRepository
}

func NewChannelRepository(base BaseRepository) repository.ChannelRepository {
	return &channelRepository{base}
}

func (r *channelRepository) Create(ctx context.Context, channel *model.Channel) error {
	query := `
		INSERT INTO notification_channels (
			id, name, provider, enabled, config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	channel.ID = uuid.New()
	channel.CreatedAt = time.Now()
	channel.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		channel.ID,
		channel.Name,
		channel.Provider,
		channel.Enabled,
		channel.Config,
		channel.CreatedAt,
		channel.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("channel name already exists", err)
		}
		return fmt.Errorf("failed to create channel: %w", err)
	}

	return nil
}

func (r *channelRepository) Get(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	query := `
		SELECT * FROM notification_channels
		WHERE id = $1
	`

	var channel model.Channel
	if err := r.db.GetContext(ctx, &channel, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("channel", err)
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return &channel, nil
}

func (r *channelRepository) List(ctx context.Context) ([]*model.Channel, error) {
	query := `
		SELECT * FROM notification_channels
		ORDER BY created_at ASC
	`

	channels := []*model.Channel{}
	if err := r.db.SelectContext(ctx, &channels, query); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	return channels, nil
}

// Update never touches the provider column, the provider of a channel is
// fixed at creation.
func (r *channelRepository) Update(ctx context.Context, channel *model.Channel) error {
	query := `
		UPDATE notification_channels SET
			name = $1,
			enabled = $2,
			config = $3,
			updated_at = $4
		WHERE id = $5
	`

	channel.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		channel.Name,
		channel.Enabled,
		channel.Config,
		channel.UpdatedAt,
		channel.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("channel name already exists", err)
		}
		return fmt.Errorf("failed to update channel: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("channel", nil)
	}

	return nil
}

func (r *channelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM notification_channels
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.NewConflict("channel is referenced by notification rules", err)
		}
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("channel", nil)
	}

	return nil
}
