package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

const slackTextLimit = 4000

type slackConfig struct {
	WebhookURL string `json:"webhook_url" validate:"required,url,startswith=https://"`
	Channel    string `json:"channel"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAdapter struct {
	client *http.Client
}

// NewSlackAdapter returns the adapter for Slack incoming webhooks.
func NewSlackAdapter(client *http.Client) Adapter {
	return &slackAdapter{client: client}
}

func (a *slackAdapter) Provider() model.Provider {
	return model.ProviderSlack
}

func (a *slackAdapter) ValidateConfig(cfg model.JSONMap) error {
	var sc slackConfig
	return decodeConfig(cfg, &sc)
}

func (a *slackAdapter) Send(ctx context.Context, cfg model.JSONMap, msg *Message) error {
	var sc slackConfig
	if err := decodeConfig(cfg, &sc); err != nil {
		return err
	}
	return a.post(ctx, &sc, buildSlackPayload(&sc, msg))
}

func (a *slackAdapter) Test(ctx context.Context, cfg model.JSONMap, _ string) error {
	var sc slackConfig
	if err := decodeConfig(cfg, &sc); err != nil {
		return err
	}
	payload := slackPayload{
		Channel: sc.Channel,
		Text:    "Berth notification test",
		Attachments: []slackAttachment{{
			Color: slackSeverityColor(model.SeverityInfo),
			Text:  "This is a test notification. Your Slack channel is configured correctly.",
			Ts:    time.Now().Unix(),
		}},
	}
	return a.post(ctx, &sc, payload)
}

func (a *slackAdapter) post(ctx context.Context, sc *slackConfig, payload slackPayload) error {
	resp, body, err := postJSON(ctx, a.client, sc.WebhookURL, payload, nil)
	if err != nil {
		return err
	}

	// Incoming webhooks answer with a plain-text body such as "ok" or
	// "channel_not_found".
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		waitRetryAfter(ctx, retryAfterHeader(resp))
		return apperrors.NewRateLimited("slack rate limit exceeded", nil)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return apperrors.NewUnauthorized(redactErr("slack webhook rejected (status %d): %s", resp.StatusCode, body), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.NewBadRequest(redactErr("slack rejected the message: %s", body), nil)
	default:
		return apperrors.NewDelivery(redactErr("slack returned status %d: %s", resp.StatusCode, body), nil)
	}
}

func buildSlackPayload(sc *slackConfig, msg *Message) slackPayload {
	attachment := slackAttachment{
		Color: slackSeverityColor(msg.Severity),
		Text:  truncate(msg.Body, slackTextLimit),
	}
	if !msg.Timestamp.IsZero() {
		attachment.Ts = msg.Timestamp.Unix()
	}
	for _, f := range metadataFields(msg.Metadata) {
		attachment.Fields = append(attachment.Fields, slackField{
			Title: f.Key,
			Value: truncate(f.Value, 1024),
			Short: true,
		})
	}
	return slackPayload{
		Channel:     sc.Channel,
		Text:        msg.Title,
		Attachments: []slackAttachment{attachment},
	}
}

func slackSeverityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "danger"
	case model.SeverityWarning:
		return "warning"
	default:
		return "#439FE0"
	}
}
