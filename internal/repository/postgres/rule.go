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

type ruleRepository struct {
	BaseRepository
}

func NewRuleRepository(base BaseRepository) repository.RuleRepository {
	return &ruleRepository{base}
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.Rule) error {
	query := `
		INSERT INTO notification_rules (
			id, event_type, channel_id, enabled, min_severity,
			cooldown_minutes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.EventType,
		rule.ChannelID,
		rule.Enabled,
		rule.MinSeverity,
		rule.CooldownMinutes,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("rule already exists for this event type and channel", err)
		}
		if isForeignKeyViolation(err) {
			return apperrors.NewNotFound("channel", err)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *ruleRepository) Get(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	query := `
		SELECT * FROM notification_rules
		WHERE id = $1
	`

	var rule model.Rule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("rule", err)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context) ([]*model.Rule, error) {
	query := `
		SELECT * FROM notification_rules
		ORDER BY event_type ASC, created_at ASC
	`

	rules := []*model.Rule{}
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	return rules, nil
}

func (r *ruleRepository) ListByEvent(ctx context.Context, eventType string) ([]*model.Rule, error) {
	query := `
		SELECT * FROM notification_rules
		WHERE event_type = $1
		ORDER BY created_at ASC
	`

	rules := []*model.Rule{}
	if err := r.db.SelectContext(ctx, &rules, query, eventType); err != nil {
		return nil, fmt.Errorf("failed to list rules for event: %w", err)
	}

	return rules, nil
}

func (r *ruleRepository) Matrix(ctx context.Context) (model.RuleMatrix, error) {
	rules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	matrix := make(model.RuleMatrix)
	for _, rule := range rules {
		matrix[rule.EventType] = append(matrix[rule.EventType], rule)
	}

	return matrix, nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *model.Rule) error {
	query := `
		UPDATE notification_rules SET
			event_type = $1,
			channel_id = $2,
			enabled = $3,
			min_severity = $4,
			cooldown_minutes = $5,
			updated_at = $6
		WHERE id = $7
	`

	rule.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		rule.EventType,
		rule.ChannelID,
		rule.Enabled,
		rule.MinSeverity,
		rule.CooldownMinutes,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("rule already exists for this event type and channel", err)
		}
		if isForeignKeyViolation(err) {
			return apperrors.NewNotFound("channel", err)
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("rule", nil)
	}

	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM notification_rules
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("rule", nil)
	}

	return nil
}
