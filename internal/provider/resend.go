package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

const resendBaseURL = "https://api.resend.com"

type resendConfig struct {
	APIKey     string   `json:"api_key" validate:"required"`
	From       string   `json:"from" validate:"required"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,email"`
}

type resendAdapter struct {
	client  *http.Client
	baseURL string
}

// NewResendAdapter returns the adapter for the Resend transactional email
// API.
func NewResendAdapter(client *http.Client) Adapter {
	return newResendAdapter(client, resendBaseURL)
}

func newResendAdapter(client *http.Client, baseURL string) *resendAdapter {
	return &resendAdapter{client: client, baseURL: baseURL}
}

func (a *resendAdapter) Provider() model.Provider {
	return model.ProviderResend
}

func (a *resendAdapter) ValidateConfig(cfg model.JSONMap) error {
	var rc resendConfig
	return decodeConfig(cfg, &rc)
}

func (a *resendAdapter) Send(ctx context.Context, cfg model.JSONMap, msg *Message) error {
	var rc resendConfig
	if err := decodeConfig(cfg, &rc); err != nil {
		return err
	}

	recipients := msg.Recipients
	if len(recipients) == 0 {
		recipients = rc.Recipients
	}
	return a.post(ctx, &rc, recipients, msg.Title, emailBody(msg))
}

func (a *resendAdapter) Test(ctx context.Context, cfg model.JSONMap, recipient string) error {
	var rc resendConfig
	if err := decodeConfig(cfg, &rc); err != nil {
		return err
	}

	recipients := rc.Recipients
	if recipient != "" {
		recipients = []string{recipient}
	}
	return a.post(ctx, &rc, recipients, "Berth notification test",
		"This is a test notification. Your Resend channel is configured correctly.")
}

func (a *resendAdapter) post(ctx context.Context, rc *resendConfig, to []string, subject, text string) error {
	payload := map[string]interface{}{
		"from":    rc.From,
		"to":      to,
		"subject": subject,
		"text":    text,
	}
	headers := map[string]string{"Authorization": "Bearer " + rc.APIKey}

	resp, body, err := postJSON(ctx, a.client, a.baseURL+"/emails", payload, headers)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.NewUnauthorized(redactErr("resend rejected the API key: %s", resendErrorDetail(body)), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		waitRetryAfter(ctx, retryAfterHeader(resp))
		return apperrors.NewRateLimited("resend rate limit exceeded", nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.NewBadRequest(redactErr("resend rejected the message: %s", resendErrorDetail(body)), nil)
	default:
		return apperrors.NewDelivery(redactErr("resend returned status %d: %s", resp.StatusCode, resendErrorDetail(body)), nil)
	}
}

// resendErrorDetail pulls the human-readable message out of a Resend error
// body, falling back to the raw body.
func resendErrorDetail(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return string(body)
}
