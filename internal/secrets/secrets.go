// Package secrets handles the sensitive fields inside channel configs:
// encryption before persistence, decryption before delivery and masking
// before anything leaves the API.
package secrets

import (
	"fmt"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/security"
)

// Mask is the placeholder returned for sensitive fields on read. Clients
// send it back unchanged to keep the stored secret on update.
const Mask = "********"

// sensitiveFields names the config keys that hold secrets, per provider.
var sensitiveFields = map[model.Provider][]string{
	model.ProviderSMTP:     {"password"},
	model.ProviderResend:   {"api_key"},
	model.ProviderDiscord:  {"webhook_url"},
	model.ProviderTelegram: {"bot_token"},
	model.ProviderSlack:    {"webhook_url"},
}

// SensitiveFields returns the secret-bearing config keys for a provider.
func SensitiveFields(p model.Provider) []string {
	return sensitiveFields[p]
}

// Resolver encrypts and decrypts the sensitive fields of channel configs.
type Resolver struct {
	encryptor security.Encryptor
	logger    *logger.Logger
}

func NewResolver(encryptor security.Encryptor, logger *logger.Logger) *Resolver {
	return &Resolver{
		encryptor: encryptor,
		logger:    logger,
	}
}

// EncryptConfig returns a copy of cfg with all sensitive fields encrypted.
// Absent or non-string fields are left alone; validation catches those
// earlier.
func (r *Resolver) EncryptConfig(p model.Provider, cfg model.JSONMap) (model.JSONMap, error) {
	out := cfg.Clone()
	for _, field := range sensitiveFields[p] {
		raw, ok := out[field]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		encrypted, err := r.encryptor.EncryptString(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt config field %s: %w", field, err)
		}
		out[field] = encrypted
	}
	return out, nil
}

// DecryptConfig returns a copy of cfg with sensitive fields decrypted for
// delivery. A field that fails to decrypt is left as stored: configs
// written before encryption was enabled keep working, and the provider
// surfaces a clean auth failure for genuinely corrupt values.
func (r *Resolver) DecryptConfig(p model.Provider, cfg model.JSONMap) model.JSONMap {
	out := cfg.Clone()
	for _, field := range sensitiveFields[p] {
		raw, ok := out[field]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		decrypted, err := r.encryptor.DecryptString(value)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("config field failed to decrypt, using stored value",
					"provider", string(p),
					"field", field)
			}
			continue
		}
		out[field] = decrypted
	}
	return out
}

// MaskConfig returns a copy of cfg with sensitive fields replaced by the
// mask placeholder.
func MaskConfig(p model.Provider, cfg model.JSONMap) model.JSONMap {
	out := cfg.Clone()
	for _, field := range sensitiveFields[p] {
		if _, ok := out[field]; ok {
			out[field] = Mask
		}
	}
	return out
}

// MergeMasked folds an update's config into the stored one: fields sent as
// the mask placeholder keep their stored (encrypted) value, everything
// else is taken from the update verbatim.
func MergeMasked(p model.Provider, update, stored model.JSONMap) model.JSONMap {
	out := update.Clone()
	for _, field := range sensitiveFields[p] {
		raw, ok := out[field]
		if !ok {
			continue
		}
		if value, ok := raw.(string); ok && value == Mask {
			if prev, ok := stored[field]; ok {
				out[field] = prev
			} else {
				delete(out, field)
			}
		}
	}
	return out
}
