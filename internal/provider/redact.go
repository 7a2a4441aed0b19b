package provider

import (
	"fmt"
	"regexp"
)

// Redaction patterns for error strings that may echo channel secrets or
// recipient addresses back from a provider API.
var (
	emailPattern = regexp.MustCompile(`\b([A-Za-z0-9])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

	secretFieldPattern = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key|apikey|authorization)\b(\s*["']?\s*[:=]\s*["']?)([^"'\s&,;]+)`)

	telegramTokenPattern = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`)

	discordWebhookPattern = regexp.MustCompile(`(https://(?:discord|discordapp)\.com/api/webhooks/\d+/)[A-Za-z0-9_-]+`)

	slackWebhookPattern = regexp.MustCompile(`(https://hooks\.slack\.com/services/)[A-Za-z0-9/]+`)
)

// Redact masks email addresses, secret-bearing key/value fragments and
// token-carrying provider URLs in s. Every adapter error message passes
// through here before it is logged or persisted to history.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = telegramTokenPattern.ReplaceAllString(s, "/bot***")
	s = discordWebhookPattern.ReplaceAllString(s, "$1***")
	s = slackWebhookPattern.ReplaceAllString(s, "$1***")
	s = secretFieldPattern.ReplaceAllString(s, "$1$2***")
	s = emailPattern.ReplaceAllString(s, "$1***@$2")
	return s
}

// redactErr formats and redacts in one step.
func redactErr(format string, args ...interface{}) string {
	return Redact(fmt.Sprintf(format, args...))
}
