package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/retry"
)

const smtpTimeout = 15 * time.Second

type smtpConfig struct {
	Host       string   `json:"host" validate:"required"`
	Port       int      `json:"port" validate:"required,min=1,max=65535"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	From       string   `json:"from" validate:"required,email"`
	FromName   string   `json:"from_name"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,email"`
	UseSSL     bool     `json:"use_ssl"`
	SkipVerify bool     `json:"skip_verify"`
}

type smtpAdapter struct{}

// NewSMTPAdapter returns the adapter for plain SMTP servers. Implicit TLS
// is selected with use_ssl; otherwise STARTTLS is negotiated when the
// server offers it.
func NewSMTPAdapter() Adapter {
	return &smtpAdapter{}
}

func (a *smtpAdapter) Provider() model.Provider {
	return model.ProviderSMTP
}

func (a *smtpAdapter) ValidateConfig(cfg model.JSONMap) error {
	var sc smtpConfig
	return decodeConfig(cfg, &sc)
}

func (a *smtpAdapter) Send(ctx context.Context, cfg model.JSONMap, msg *Message) error {
	var sc smtpConfig
	if err := decodeConfig(cfg, &sc); err != nil {
		return err
	}

	recipients := msg.Recipients
	if len(recipients) == 0 {
		recipients = sc.Recipients
	}
	if len(recipients) == 0 {
		return apperrors.NewBadRequest("no recipients configured", nil)
	}

	m := buildMail(&sc, recipients, msg.Title, emailBody(msg))
	return a.deliver(ctx, &sc, m)
}

func (a *smtpAdapter) Test(ctx context.Context, cfg model.JSONMap, recipient string) error {
	var sc smtpConfig
	if err := decodeConfig(cfg, &sc); err != nil {
		return err
	}

	recipients := sc.Recipients
	if recipient != "" {
		recipients = []string{recipient}
	}

	m := buildMail(&sc, recipients, "Berth notification test",
		"This is a test notification. Your SMTP channel is configured correctly.")

	// Connection problems to mail servers are often transient, so the
	// probe gets a short retry budget instead of a single shot.
	return retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		return a.deliver(ctx, &sc, m)
	})
}

// deliver runs the dial and send under a deadline. gomail has no context
// support; on timeout the goroutine keeps running until the socket gives
// up, but the dispatch worker moves on.
func (a *smtpAdapter) deliver(ctx context.Context, sc *smtpConfig, m *gomail.Message) error {
	d := gomail.NewDialer(sc.Host, sc.Port, sc.Username, sc.Password)
	d.SSL = sc.UseSSL
	d.TLSConfig = &tls.Config{
		ServerName:         sc.Host,
		InsecureSkipVerify: sc.SkipVerify,
	}

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return apperrors.NewDelivery(redactErr("smtp delivery failed: %v", err), err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(smtpTimeout):
		return apperrors.NewDelivery(redactErr("smtp delivery to %s:%d timed out", sc.Host, sc.Port), nil)
	}
}

func buildMail(sc *smtpConfig, recipients []string, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	if sc.FromName != "" {
		m.SetAddressHeader("From", sc.From, sc.FromName)
	} else {
		m.SetHeader("From", sc.From)
	}
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m
}

func emailBody(msg *Message) string {
	var b strings.Builder
	b.WriteString(msg.Body)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Event: %s\n", msg.EventType)
	fmt.Fprintf(&b, "Severity: %s\n", msg.Severity)
	if !msg.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", msg.Timestamp.UTC().Format(time.RFC3339))
	}
	for _, f := range metadataFields(msg.Metadata) {
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}
	return b.String()
}
