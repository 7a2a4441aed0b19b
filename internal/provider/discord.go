package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

// Discord embed sidebar colors per severity.
const (
	discordColorInfo     = 3447003
	discordColorWarning  = 16776960
	discordColorCritical = 15158332

	discordMaxDescription = 4000
	discordMaxFields      = 25
)

type discordConfig struct {
	WebhookURL string `json:"webhook_url" validate:"required,url,startswith=https://"`
	Username   string `json:"username"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordAdapter struct {
	client *http.Client
}

// NewDiscordAdapter returns the adapter for Discord incoming webhooks.
func NewDiscordAdapter(client *http.Client) Adapter {
	return &discordAdapter{client: client}
}

func (a *discordAdapter) Provider() model.Provider {
	return model.ProviderDiscord
}

func (a *discordAdapter) ValidateConfig(cfg model.JSONMap) error {
	var dc discordConfig
	return decodeConfig(cfg, &dc)
}

func (a *discordAdapter) Send(ctx context.Context, cfg model.JSONMap, msg *Message) error {
	var dc discordConfig
	if err := decodeConfig(cfg, &dc); err != nil {
		return err
	}
	return a.post(ctx, &dc, buildDiscordEmbed(msg))
}

func (a *discordAdapter) Test(ctx context.Context, cfg model.JSONMap, _ string) error {
	var dc discordConfig
	if err := decodeConfig(cfg, &dc); err != nil {
		return err
	}
	embed := discordEmbed{
		Title:       "Berth notification test",
		Description: "This is a test notification. Your Discord channel is configured correctly.",
		Color:       discordColorInfo,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	return a.post(ctx, &dc, embed)
}

func (a *discordAdapter) post(ctx context.Context, dc *discordConfig, embed discordEmbed) error {
	payload := discordPayload{
		Username: dc.Username,
		Embeds:   []discordEmbed{embed},
	}

	resp, body, err := postJSON(ctx, a.client, dc.WebhookURL, payload, nil)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		waitRetryAfter(ctx, discordRetryAfter(resp, body))
		return apperrors.NewRateLimited("discord rate limit exceeded", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return apperrors.NewUnauthorized(redactErr("discord webhook rejected (status %d): %s", resp.StatusCode, body), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.NewBadRequest(redactErr("discord rejected the message: %s", body), nil)
	default:
		return apperrors.NewDelivery(redactErr("discord returned status %d: %s", resp.StatusCode, body), nil)
	}
}

// discordRetryAfter prefers the retry_after body field, which Discord
// reports in seconds, over the Retry-After header.
func discordRetryAfter(resp *http.Response, body []byte) time.Duration {
	var e struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter * float64(time.Second))
	}
	return retryAfterHeader(resp)
}

func buildDiscordEmbed(msg *Message) discordEmbed {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: truncate(msg.Body, discordMaxDescription),
		Color:       discordSeverityColor(msg.Severity),
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	for i, f := range metadataFields(msg.Metadata) {
		if i == discordMaxFields {
			break
		}
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   f.Key,
			Value:  truncate(f.Value, 1024),
			Inline: true,
		})
	}
	return embed
}

func discordSeverityColor(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return discordColorCritical
	case model.SeverityWarning:
		return discordColorWarning
	default:
		return discordColorInfo
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
