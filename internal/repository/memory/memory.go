// Package memory provides mutex-guarded in-memory implementations of the
// repository interfaces. They back the dev-mode storage driver and the
// dispatcher tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/repository"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

type ChannelRepository struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]*model.Channel
}

func NewChannelRepository() *ChannelRepository {
	return &ChannelRepository{channels: make(map[uuid.UUID]*model.Channel)}
}

func (r *ChannelRepository) Create(ctx context.Context, channel *model.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.channels {
		if existing.Name == channel.Name {
			return apperrors.NewConflict("channel name already exists", nil)
		}
	}

	channel.ID = uuid.New()
	channel.CreatedAt = time.Now()
	channel.UpdatedAt = time.Now()

	stored := *channel
	stored.Config = channel.Config.Clone()
	r.channels[channel.ID] = &stored
	return nil
}

func (r *ChannelRepository) Get(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channel, ok := r.channels[id]
	if !ok {
		return nil, apperrors.NewNotFound("channel", nil)
	}
	copied := *channel
	copied.Config = channel.Config.Clone()
	return &copied, nil
}

func (r *ChannelRepository) List(ctx context.Context) ([]*model.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]*model.Channel, 0, len(r.channels))
	for _, channel := range r.channels {
		copied := *channel
		copied.Config = channel.Config.Clone()
		channels = append(channels, &copied)
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})
	return channels, nil
}

func (r *ChannelRepository) Update(ctx context.Context, channel *model.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.channels[channel.ID]
	if !ok {
		return apperrors.NewNotFound("channel", nil)
	}

	for _, other := range r.channels {
		if other.ID != channel.ID && other.Name == channel.Name {
			return apperrors.NewConflict("channel name already exists", nil)
		}
	}

	existing.Name = channel.Name
	existing.Enabled = channel.Enabled
	existing.Config = channel.Config.Clone()
	existing.UpdatedAt = time.Now()
	channel.Provider = existing.Provider
	channel.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *ChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[id]; !ok {
		return apperrors.NewNotFound("channel", nil)
	}
	delete(r.channels, id)
	return nil
}

type RuleRepository struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]*model.Rule
}

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{rules: make(map[uuid.UUID]*model.Rule)}
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rules {
		if existing.EventType == rule.EventType && existing.ChannelID == rule.ChannelID {
			return apperrors.NewConflict("rule already exists for this event type and channel", nil)
		}
	}

	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()

	stored := *rule
	r.rules[rule.ID] = &stored
	return nil
}

func (r *RuleRepository) Get(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, apperrors.NewNotFound("rule", nil)
	}
	copied := *rule
	return &copied, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*model.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		copied := *rule
		rules = append(rules, &copied)
	}
	sortRules(rules)
	return rules, nil
}

func (r *RuleRepository) ListByEvent(ctx context.Context, eventType string) ([]*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := []*model.Rule{}
	for _, rule := range r.rules {
		if rule.EventType == eventType {
			copied := *rule
			rules = append(rules, &copied)
		}
	}
	sortRules(rules)
	return rules, nil
}

func (r *RuleRepository) Matrix(ctx context.Context) (model.RuleMatrix, error) {
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

func (r *RuleRepository) Update(ctx context.Context, rule *model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rules[rule.ID]
	if !ok {
		return apperrors.NewNotFound("rule", nil)
	}

	for _, other := range r.rules {
		if other.ID != rule.ID && other.EventType == rule.EventType && other.ChannelID == rule.ChannelID {
			return apperrors.NewConflict("rule already exists for this event type and channel", nil)
		}
	}

	existing.EventType = rule.EventType
	existing.ChannelID = rule.ChannelID
	existing.Enabled = rule.Enabled
	existing.MinSeverity = rule.MinSeverity
	existing.CooldownMinutes = rule.CooldownMinutes
	existing.UpdatedAt = time.Now()
	rule.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return apperrors.NewNotFound("rule", nil)
	}
	delete(r.rules, id)
	return nil
}

func sortRules(rules []*model.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].EventType != rules[j].EventType {
			return rules[i].EventType < rules[j].EventType
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

type HistoryRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*model.HistoryEntry
	order   []uuid.UUID
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{entries: make(map[uuid.UUID]*model.HistoryEntry)}
}

func (r *HistoryRepository) Create(ctx context.Context, entry *model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	stored := *entry
	r.entries[entry.ID] = &stored
	r.order = append(r.order, entry.ID)
	return nil
}

func (r *HistoryRepository) Update(ctx context.Context, id uuid.UUID, fields model.HistoryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return apperrors.NewNotFound("history entry", nil)
	}

	if fields.Status != nil {
		entry.Status = *fields.Status
	}
	if fields.Error != nil {
		if *fields.Error == "" {
			entry.Error = nil
		} else {
			errCopy := *fields.Error
			entry.Error = &errCopy
		}
	}
	if fields.RetryCount != nil {
		entry.RetryCount = *fields.RetryCount
	}
	if fields.SentAt != nil {
		entry.SentAt = fields.SentAt
	}
	return nil
}

func (r *HistoryRepository) WasRecentlySent(ctx context.Context, eventType string, channelID uuid.UUID, within time.Duration) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	for _, entry := range r.entries {
		if entry.EventType != eventType || entry.ChannelID != channelID {
			continue
		}
		if entry.Status != model.HistoryStatusSent || entry.SentAt == nil {
			continue
		}
		if entry.SentAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (r *HistoryRepository) List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*model.HistoryEntry{}
	// Newest first
	for i := len(r.order) - 1; i >= 0; i-- {
		entry := r.entries[r.order[i]]
		if filter != nil {
			if filter.EventType != "" && entry.EventType != filter.EventType {
				continue
			}
			if filter.ChannelID != uuid.Nil && entry.ChannelID != filter.ChannelID {
				continue
			}
			if filter.Status != "" && entry.Status != filter.Status {
				continue
			}
		}
		copied := *entry
		matched = append(matched, &copied)
	}

	offset := 0
	limit := 50
	if filter != nil {
		if filter.Offset > 0 {
			offset = filter.Offset
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}
	if offset >= len(matched) {
		return []*model.HistoryEntry{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

var (
	_ repository.ChannelRepository = (*ChannelRepository)(nil)
	_ repository.RuleRepository    = (*RuleRepository)(nil)
	_ repository.HistoryRepository = (*HistoryRepository)(nil)
)
