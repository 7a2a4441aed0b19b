package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

func telegramServer(t *testing.T, status int, body string, gotPath *string, gotPayload *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotPath != nil {
			*gotPath = r.URL.Path
		}
		if gotPayload != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(gotPayload))
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestTelegramSend(t *testing.T) {
	var path string
	var payload map[string]interface{}
	server := telegramServer(t, http.StatusOK, `{"ok":true,"result":{}}`, &path, &payload)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	cfg := model.JSONMap{"bot_token": "123456:ABC-DEF", "chat_id": "-100200300"}
	msg := &Message{
		Title:    "[WARNING] system.disk_space_low",
		Body:     "volume /data is at 92%",
		Metadata: model.JSONMap{"mount": "/data"},
	}

	err := a.Send(context.Background(), cfg, msg)
	assert.NoError(t, err)

	assert.Equal(t, "/bot123456:ABC-DEF/sendMessage", path)
	assert.Equal(t, "-100200300", payload["chat_id"])
	assert.Equal(t, "HTML", payload["parse_mode"])
	assert.Equal(t, true, payload["disable_web_page_preview"])
	text, _ := payload["text"].(string)
	assert.Contains(t, text, "<b>[WARNING] system.disk_space_low</b>")
	assert.Contains(t, text, "volume /data is at 92%")
	assert.Contains(t, text, "<b>mount:</b> /data")
}

func TestTelegramEscapesHTML(t *testing.T) {
	var payload map[string]interface{}
	server := telegramServer(t, http.StatusOK, `{"ok":true}`, nil, &payload)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	cfg := model.JSONMap{"bot_token": "123456:ABC", "chat_id": "1"}
	msg := &Message{Title: "alert <script>", Body: "a < b & c > d"}

	assert.NoError(t, a.Send(context.Background(), cfg, msg))
	text, _ := payload["text"].(string)
	assert.Contains(t, text, "alert &lt;script&gt;")
	assert.Contains(t, text, "a &lt; b &amp; c &gt; d")
	assert.NotContains(t, text, "<script>")
}

func TestTelegramRateLimited(t *testing.T) {
	body := `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":0}}`
	server := telegramServer(t, http.StatusTooManyRequests, body, nil, nil)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	err := a.Send(context.Background(), model.JSONMap{"bot_token": "1:a", "chat_id": "1"}, &Message{Title: "t"})

	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrRateLimited, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestTelegramBadToken(t *testing.T) {
	body := `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	server := telegramServer(t, http.StatusUnauthorized, body, nil, nil)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	err := a.Send(context.Background(), model.JSONMap{"bot_token": "1:bad", "chat_id": "1"}, &Message{Title: "t"})

	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "telegram rejected the bot token")
}

func TestTelegramChatNotFound(t *testing.T) {
	body := `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
	server := telegramServer(t, http.StatusBadRequest, body, nil, nil)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	err := a.Send(context.Background(), model.JSONMap{"bot_token": "1:a", "chat_id": "0"}, &Message{Title: "t"})

	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramServerError(t *testing.T) {
	server := telegramServer(t, http.StatusBadGateway, "bad gateway", nil, nil)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	err := a.Send(context.Background(), model.JSONMap{"bot_token": "1:a", "chat_id": "1"}, &Message{Title: "t"})

	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrDelivery, apperrors.CodeOf(err))
}

func TestTelegramTestMessage(t *testing.T) {
	var payload map[string]interface{}
	server := telegramServer(t, http.StatusOK, `{"ok":true}`, nil, &payload)
	defer server.Close()

	a := newTelegramAdapter(server.Client(), server.URL)
	err := a.Test(context.Background(), model.JSONMap{"bot_token": "1:a", "chat_id": "1"}, "")
	assert.NoError(t, err)

	text, _ := payload["text"].(string)
	assert.Contains(t, text, "Berth notification test")
}

func TestTelegramValidateConfig(t *testing.T) {
	a := NewTelegramAdapter(nil)

	assert.NoError(t, a.ValidateConfig(model.JSONMap{"bot_token": "1:a", "chat_id": "1"}))

	err := a.ValidateConfig(model.JSONMap{"bot_token": "1:a"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chat_id is required")
}
