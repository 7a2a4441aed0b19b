package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/repository"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

type historyRepository struct {
	BaseRepository
}

func NewHistoryRepository(base BaseRepository) repository.HistoryRepository {
	return &historyRepository{base}
}

func (r *historyRepository) Create(ctx context.Context, entry *model.HistoryEntry) error {
	query := `
		INSERT INTO notification_history (
			id, event_type, channel_id, severity, message, status,
			error, retry_count, sent_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.ChannelID,
		entry.Severity,
		entry.Message,
		entry.Status,
		entry.Error,
		entry.RetryCount,
		entry.SentAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}

	return nil
}

// Update applies only the fields set on the update; nil fields keep their
// stored value. An empty Error string clears the column, so a delivery that
// eventually succeeds does not keep the text of earlier failed attempts.
func (r *historyRepository) Update(ctx context.Context, id uuid.UUID, fields model.HistoryUpdate) error {
	query := `
		UPDATE notification_history SET
			status = COALESCE($1, status),
			error = NULLIF(COALESCE($2, error), ''),
			retry_count = COALESCE($3, retry_count),
			sent_at = COALESCE($4, sent_at)
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		fields.Status,
		fields.Error,
		fields.RetryCount,
		fields.SentAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update history entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("history entry", nil)
	}

	return nil
}

// WasRecentlySent reports whether the channel already received a successful
// delivery for the event type inside the lookback window. Only entries that
// reached status sent count; pending or failed attempts never suppress a
// new notification.
func (r *historyRepository) WasRecentlySent(ctx context.Context, eventType string, channelID uuid.UUID, within time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_history
			WHERE event_type = $1
			  AND channel_id = $2
			  AND status = $3
			  AND sent_at > $4
		)
	`

	var exists bool
	cutoff := time.Now().Add(-within)
	if err := r.db.GetContext(ctx, &exists, query, eventType, channelID, model.HistoryStatusSent, cutoff); err != nil {
		return false, fmt.Errorf("failed to check recent notifications: %w", err)
	}

	return exists, nil
}

func (r *historyRepository) List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryEntry, error) {
	query := `SELECT * FROM notification_history WHERE 1=1`
	args := []interface{}{}

	if filter != nil {
		if filter.EventType != "" {
			args = append(args, filter.EventType)
			query += fmt.Sprintf(" AND event_type = $%d", len(args))
		}
		if filter.ChannelID != uuid.Nil {
			args = append(args, filter.ChannelID)
			query += fmt.Sprintf(" AND channel_id = $%d", len(args))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}

	query += " ORDER BY created_at DESC"

	limit := 50
	if filter != nil && filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter != nil && filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	entries := []*model.HistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	return entries, nil
}
