package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

func TestChannelRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelRepository()

	ch := &model.Channel{
		Name:     "ops-discord",
		Provider: model.ProviderDiscord,
		Enabled:  true,
		Config:   model.JSONMap{"webhook_url": "https://discord.com/api/webhooks/1/x"},
	}

	// Create assigns identity and timestamps.
	assert.NoError(t, repo.Create(ctx, ch))
	assert.NotEqual(t, uuid.Nil, ch.ID)
	assert.False(t, ch.CreatedAt.IsZero())

	got, err := repo.Get(ctx, ch.ID)
	assert.NoError(t, err)
	assert.Equal(t, "ops-discord", got.Name)
	assert.Equal(t, model.ProviderDiscord, got.Provider)

	// The stored config is insulated from caller mutation.
	got.Config["webhook_url"] = "tampered"
	again, err := repo.Get(ctx, ch.ID)
	assert.NoError(t, err)
	assert.Equal(t, "https://discord.com/api/webhooks/1/x", again.Config["webhook_url"])

	// Update rewrites mutable fields, never the provider.
	update := &model.Channel{Base: model.Base{ID: ch.ID}, Name: "ops-discord-2", Provider: model.ProviderSlack, Enabled: false, Config: model.JSONMap{"webhook_url": "https://discord.com/api/webhooks/1/y"}}
	assert.NoError(t, repo.Update(ctx, update))
	got, err = repo.Get(ctx, ch.ID)
	assert.NoError(t, err)
	assert.Equal(t, "ops-discord-2", got.Name)
	assert.False(t, got.Enabled)
	assert.Equal(t, model.ProviderDiscord, got.Provider)

	assert.NoError(t, repo.Delete(ctx, ch.ID))
	_, err = repo.Get(ctx, ch.ID)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(repo.Delete(ctx, ch.ID)))
}

func TestChannelRepositoryNameConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelRepository()

	assert.NoError(t, repo.Create(ctx, &model.Channel{Name: "ops", Provider: model.ProviderSlack}))
	err := repo.Create(ctx, &model.Channel{Name: "ops", Provider: model.ProviderDiscord})
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	other := &model.Channel{Name: "oncall", Provider: model.ProviderSMTP}
	assert.NoError(t, repo.Create(ctx, other))

	// Renaming onto a taken name conflicts too.
	other.Name = "ops"
	err = repo.Update(ctx, other)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestChannelRepositoryListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelRepository()

	for _, name := range []string{"first", "second", "third"} {
		assert.NoError(t, repo.Create(ctx, &model.Channel{Name: name, Provider: model.ProviderSlack}))
		time.Sleep(time.Millisecond)
	}

	channels, err := repo.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, channels, 3)
	assert.Equal(t, "first", channels[0].Name)
	assert.Equal(t, "third", channels[2].Name)
}

func TestRuleRepositoryPairConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRuleRepository()
	channelID := uuid.New()

	rule := &model.Rule{EventType: "container.crashed", ChannelID: channelID, Enabled: true, MinSeverity: model.SeverityInfo}
	assert.NoError(t, repo.Create(ctx, rule))

	// Same event type and channel is a duplicate.
	err := repo.Create(ctx, &model.Rule{EventType: "container.crashed", ChannelID: channelID})
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	// Same event type on another channel is fine.
	otherChannel := &model.Rule{EventType: "container.crashed", ChannelID: uuid.New()}
	assert.NoError(t, repo.Create(ctx, otherChannel))

	// Updating onto an existing pair conflicts.
	otherChannel.ChannelID = channelID
	err = repo.Update(ctx, otherChannel)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestRuleRepositoryListByEvent(t *testing.T) {
	ctx := context.Background()
	repo := NewRuleRepository()

	assert.NoError(t, repo.Create(ctx, &model.Rule{EventType: "container.crashed", ChannelID: uuid.New()}))
	assert.NoError(t, repo.Create(ctx, &model.Rule{EventType: "container.crashed", ChannelID: uuid.New()}))
	assert.NoError(t, repo.Create(ctx, &model.Rule{EventType: "system.disk_space_low", ChannelID: uuid.New()}))

	rules, err := repo.ListByEvent(ctx, "container.crashed")
	assert.NoError(t, err)
	assert.Len(t, rules, 2)

	rules, err = repo.ListByEvent(ctx, "container.oom_killed")
	assert.NoError(t, err)
	assert.Empty(t, rules)

	matrix, err := repo.Matrix(ctx)
	assert.NoError(t, err)
	assert.Len(t, matrix, 2)
	assert.Len(t, matrix["container.crashed"], 2)
	assert.Len(t, matrix["system.disk_space_low"], 1)
}

func TestHistoryRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository()

	entry := &model.HistoryEntry{
		EventType: "container.crashed",
		ChannelID: uuid.New(),
		Severity:  model.SeverityCritical,
		Message:   "boom",
		Status:    model.HistoryStatusPending,
	}
	assert.NoError(t, repo.Create(ctx, entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)

	// Mid-flight retry bookkeeping.
	retrying := model.HistoryStatusRetrying
	errMsg := "discord returned status 502"
	one := 1
	assert.NoError(t, repo.Update(ctx, entry.ID, model.HistoryUpdate{Status: &retrying, Error: &errMsg, RetryCount: &one}))

	entries, err := repo.List(ctx, nil)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, model.HistoryStatusRetrying, entries[0].Status)
	assert.Equal(t, "discord returned status 502", *entries[0].Error)
	assert.Equal(t, 1, entries[0].RetryCount)

	// Terminal success clears the error.
	sent := model.HistoryStatusSent
	now := time.Now().UTC()
	noError := ""
	two := 2
	assert.NoError(t, repo.Update(ctx, entry.ID, model.HistoryUpdate{Status: &sent, Error: &noError, RetryCount: &two, SentAt: &now}))

	entries, err = repo.List(ctx, nil)
	assert.NoError(t, err)
	assert.Equal(t, model.HistoryStatusSent, entries[0].Status)
	assert.Nil(t, entries[0].Error)
	assert.Equal(t, 2, entries[0].RetryCount)
	assert.NotNil(t, entries[0].SentAt)

	err = repo.Update(ctx, uuid.New(), model.HistoryUpdate{Status: &sent})
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestHistoryRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository()
	channelA := uuid.New()
	channelB := uuid.New()

	seed := []*model.HistoryEntry{
		{EventType: "container.crashed", ChannelID: channelA, Severity: model.SeverityCritical, Status: model.HistoryStatusSent},
		{EventType: "container.crashed", ChannelID: channelB, Severity: model.SeverityCritical, Status: model.HistoryStatusFailed},
		{EventType: "system.disk_space_low", ChannelID: channelA, Severity: model.SeverityWarning, Status: model.HistoryStatusSent},
	}
	for _, e := range seed {
		assert.NoError(t, repo.Create(ctx, e))
	}

	// Newest first.
	entries, err := repo.List(ctx, nil)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "system.disk_space_low", entries[0].EventType)

	entries, err = repo.List(ctx, &model.HistoryFilter{EventType: "container.crashed"})
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = repo.List(ctx, &model.HistoryFilter{ChannelID: channelA})
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = repo.List(ctx, &model.HistoryFilter{Status: model.HistoryStatusFailed})
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, channelB, entries[0].ChannelID)

	// Pagination.
	entries, err = repo.List(ctx, &model.HistoryFilter{Limit: 2})
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = repo.List(ctx, &model.HistoryFilter{Limit: 2, Offset: 2})
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = repo.List(ctx, &model.HistoryFilter{Offset: 99})
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryRepositoryWasRecentlySent(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository()
	channelID := uuid.New()

	// A failed entry never counts.
	failed := &model.HistoryEntry{EventType: "system.disk_space_low", ChannelID: channelID, Status: model.HistoryStatusFailed}
	assert.NoError(t, repo.Create(ctx, failed))

	sent, err := repo.WasRecentlySent(ctx, "system.disk_space_low", channelID, 10*time.Minute)
	assert.NoError(t, err)
	assert.False(t, sent)

	// A sent entry inside the window suppresses.
	now := time.Now().UTC()
	entry := &model.HistoryEntry{EventType: "system.disk_space_low", ChannelID: channelID, Status: model.HistoryStatusSent, SentAt: &now}
	assert.NoError(t, repo.Create(ctx, entry))

	sent, err = repo.WasRecentlySent(ctx, "system.disk_space_low", channelID, 10*time.Minute)
	assert.NoError(t, err)
	assert.True(t, sent)

	// Other event types and channels are unaffected.
	sent, err = repo.WasRecentlySent(ctx, "container.crashed", channelID, 10*time.Minute)
	assert.NoError(t, err)
	assert.False(t, sent)

	sent, err = repo.WasRecentlySent(ctx, "system.disk_space_low", uuid.New(), 10*time.Minute)
	assert.NoError(t, err)
	assert.False(t, sent)

	// Outside the window the delivery no longer suppresses.
	old := time.Now().Add(-time.Hour)
	stale := &model.HistoryEntry{EventType: "container.oom_killed", ChannelID: channelID, Status: model.HistoryStatusSent, SentAt: &old}
	assert.NoError(t, repo.Create(ctx, stale))

	sent, err = repo.WasRecentlySent(ctx, "container.oom_killed", channelID, 10*time.Minute)
	assert.NoError(t, err)
	assert.False(t, sent)
}
