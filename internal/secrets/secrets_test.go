package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/secrets"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/security"
)

func newResolver(t *testing.T) *secrets.Resolver {
	t.Helper()
	enc, err := security.NewAESEncryptor(security.DeriveKey("test-master-key"))
	assert.NoError(t, err)
	return secrets.NewResolver(enc, logger.Nop())
}

func TestEncryptConfigOnlyTouchesSensitiveFields(t *testing.T) {
	r := newResolver(t)

	cfg := model.JSONMap{
		"host":     "smtp.example.com",
		"port":     float64(587),
		"username": "notify",
		"password": "hunter2",
	}

	encrypted, err := r.EncryptConfig(model.ProviderSMTP, cfg)
	assert.NoError(t, err)

	assert.Equal(t, "smtp.example.com", encrypted["host"])
	assert.Equal(t, float64(587), encrypted["port"])
	assert.Equal(t, "notify", encrypted["username"])
	assert.NotEqual(t, "hunter2", encrypted["password"])

	// The input map is not mutated.
	assert.Equal(t, "hunter2", cfg["password"])
}

func TestDecryptConfigRoundTrip(t *testing.T) {
	r := newResolver(t)

	cfg := model.JSONMap{"bot_token": "123456:ABCDEF", "chat_id": "-100200300"}
	encrypted, err := r.EncryptConfig(model.ProviderTelegram, cfg)
	assert.NoError(t, err)
	assert.NotEqual(t, "123456:ABCDEF", encrypted["bot_token"])

	decrypted := r.DecryptConfig(model.ProviderTelegram, encrypted)
	assert.Equal(t, "123456:ABCDEF", decrypted["bot_token"])
	assert.Equal(t, "-100200300", decrypted["chat_id"])
}

func TestDecryptConfigKeepsLegacyPlaintext(t *testing.T) {
	r := newResolver(t)

	// A config stored before encryption was enabled.
	cfg := model.JSONMap{"api_key": "re_plaintext_key"}
	decrypted := r.DecryptConfig(model.ProviderResend, cfg)
	assert.Equal(t, "re_plaintext_key", decrypted["api_key"])
}

func TestEncryptConfigSkipsAbsentAndEmptyFields(t *testing.T) {
	r := newResolver(t)

	cfg := model.JSONMap{"webhook_url": ""}
	encrypted, err := r.EncryptConfig(model.ProviderDiscord, cfg)
	assert.NoError(t, err)
	assert.Equal(t, "", encrypted["webhook_url"])

	encrypted, err = r.EncryptConfig(model.ProviderSlack, model.JSONMap{"channel": "#alerts"})
	assert.NoError(t, err)
	assert.Equal(t, "#alerts", encrypted["channel"])
}

func TestMaskConfig(t *testing.T) {
	cfg := model.JSONMap{
		"host":     "smtp.example.com",
		"password": "encrypted-blob",
	}

	masked := secrets.MaskConfig(model.ProviderSMTP, cfg)
	assert.Equal(t, secrets.Mask, masked["password"])
	assert.Equal(t, "smtp.example.com", masked["host"])

	// Absent sensitive fields are not invented.
	masked = secrets.MaskConfig(model.ProviderSMTP, model.JSONMap{"host": "smtp.example.com"})
	_, ok := masked["password"]
	assert.False(t, ok)
}

func TestMergeMasked(t *testing.T) {
	stored := model.JSONMap{"webhook_url": "encrypted-blob", "username": "old-bot"}

	// The mask placeholder keeps the stored secret, other fields win.
	update := model.JSONMap{"webhook_url": secrets.Mask, "username": "new-bot"}
	merged := secrets.MergeMasked(model.ProviderDiscord, update, stored)
	assert.Equal(t, "encrypted-blob", merged["webhook_url"])
	assert.Equal(t, "new-bot", merged["username"])

	// A real new value replaces the stored one.
	update = model.JSONMap{"webhook_url": "https://discord.com/api/webhooks/new"}
	merged = secrets.MergeMasked(model.ProviderDiscord, update, stored)
	assert.Equal(t, "https://discord.com/api/webhooks/new", merged["webhook_url"])

	// A mask with nothing stored underneath is dropped.
	merged = secrets.MergeMasked(model.ProviderDiscord, model.JSONMap{"webhook_url": secrets.Mask}, model.JSONMap{})
	_, ok := merged["webhook_url"]
	assert.False(t, ok)
}

func TestSensitiveFields(t *testing.T) {
	assert.Equal(t, []string{"password"}, secrets.SensitiveFields(model.ProviderSMTP))
	assert.Equal(t, []string{"api_key"}, secrets.SensitiveFields(model.ProviderResend))
	assert.Equal(t, []string{"webhook_url"}, secrets.SensitiveFields(model.ProviderDiscord))
	assert.Equal(t, []string{"bot_token"}, secrets.SensitiveFields(model.ProviderTelegram))
	assert.Equal(t, []string{"webhook_url"}, secrets.SensitiveFields(model.ProviderSlack))
	assert.Nil(t, secrets.SensitiveFields(model.Provider("pager")))
}
