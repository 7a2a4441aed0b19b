package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

const (
	telegramBaseURL   = "https://api.telegram.org"
	telegramTextLimit = 4000
)

type telegramConfig struct {
	BotToken string `json:"bot_token" validate:"required"`
	ChatID   string `json:"chat_id" validate:"required"`
}

// telegramResponse is the Bot API envelope. error_code and description are
// only present on failure; parameters carries the flood-control hint.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type telegramAdapter struct {
	client  *http.Client
	baseURL string
}

// NewTelegramAdapter returns the adapter for Telegram bots. Messages are
// sent with ParseMode=HTML, so all dynamic content is escaped.
func NewTelegramAdapter(client *http.Client) Adapter {
	return newTelegramAdapter(client, telegramBaseURL)
}

func newTelegramAdapter(client *http.Client, baseURL string) *telegramAdapter {
	return &telegramAdapter{client: client, baseURL: baseURL}
}

func (a *telegramAdapter) Provider() model.Provider {
	return model.ProviderTelegram
}

func (a *telegramAdapter) ValidateConfig(cfg model.JSONMap) error {
	var tc telegramConfig
	return decodeConfig(cfg, &tc)
}

func (a *telegramAdapter) Send(ctx context.Context, cfg model.JSONMap, msg *Message) error {
	var tc telegramConfig
	if err := decodeConfig(cfg, &tc); err != nil {
		return err
	}
	return a.sendMessage(ctx, &tc, telegramText(msg))
}

func (a *telegramAdapter) Test(ctx context.Context, cfg model.JSONMap, _ string) error {
	var tc telegramConfig
	if err := decodeConfig(cfg, &tc); err != nil {
		return err
	}
	text := "<b>Berth notification test</b>\n" +
		"This is a test notification. Your Telegram channel is configured correctly."
	return a.sendMessage(ctx, &tc, text)
}

func (a *telegramAdapter) sendMessage(ctx context.Context, tc *telegramConfig, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  tc.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, tc.BotToken)

	resp, body, err := postJSON(ctx, a.client, url, payload, nil)
	if err != nil {
		return err
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		tr = telegramResponse{}
	}
	if resp.StatusCode/100 == 2 && tr.OK {
		return nil
	}

	detail := tr.Description
	if detail == "" {
		detail = string(body)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || tr.ErrorCode == http.StatusTooManyRequests:
		hint := retryAfterHeader(resp)
		if tr.Parameters != nil && tr.Parameters.RetryAfter > 0 {
			hint = time.Duration(tr.Parameters.RetryAfter) * time.Second
		}
		waitRetryAfter(ctx, hint)
		return apperrors.NewRateLimited("telegram rate limit exceeded", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		return apperrors.NewUnauthorized(redactErr("telegram rejected the bot token: %s", detail), nil)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden:
		return apperrors.NewBadRequest(redactErr("telegram rejected the message: %s", detail), nil)
	default:
		return apperrors.NewDelivery(redactErr("telegram returned status %d: %s", resp.StatusCode, detail), nil)
	}
}

func telegramText(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(msg.Title))
	b.WriteString(html.EscapeString(msg.Body))
	if fields := metadataFields(msg.Metadata); len(fields) > 0 {
		b.WriteString("\n")
		for _, f := range fields {
			fmt.Fprintf(&b, "\n<b>%s:</b> %s",
				html.EscapeString(f.Key), html.EscapeString(f.Value))
		}
	}
	return truncate(b.String(), telegramTextLimit)
}
