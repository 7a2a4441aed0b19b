package model

// Provider identifies the delivery backend of a notification channel.
type Provider string

const (
	ProviderSMTP     Provider = "smtp"
	ProviderResend   Provider = "resend"
	ProviderDiscord  Provider = "discord"
	ProviderTelegram Provider = "telegram"
	ProviderSlack    Provider = "slack"
)

var providers = map[Provider]bool{
	ProviderSMTP:     true,
	ProviderResend:   true,
	ProviderDiscord:  true,
	ProviderTelegram: true,
	ProviderSlack:    true,
}

func (p Provider) Valid() bool {
	return providers[p]
}

func Providers() []Provider {
	return []Provider{ProviderSMTP, ProviderResend, ProviderDiscord, ProviderTelegram, ProviderSlack}
}

// Channel is an operator-configured notification destination. Config holds
// the provider-specific settings; sensitive fields are stored encrypted and
// only decrypted in memory right before a delivery. The provider is fixed at
// creation, updates never change it.
type Channel struct {
	Base
	Name     string   `json:"name" db:"name"`
	Provider Provider `json:"provider" db:"provider"`
	Enabled  bool     `json:"enabled" db:"enabled"`
	Config   JSONMap  `json:"config" db:"config"`
}
