package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// RedactOptions configures scrubbing for Logger.
//
// MaskHeaders lists extra header names (case-insensitive) whose values are
// replaced with "[REDACTED]", on top of Authorization, Cookie, Set-Cookie and
// X-Telegram-Bot-Api-Secret-Token.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	// Telegram bot tokens look like "123456789:AAE...". They show up in
	// copied bot API URLs.
	botTokenRE = regexp.MustCompile(`\b\d{6,12}:[A-Za-z0-9_-]{30,}\b`)
	emailRE    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// secret-ish query parameters: token=..., api_key=..., password=...
	secretParamRE = regexp.MustCompile(`(?i)\b((?:access_|api_|bot_)?(?:token|key|secret|password|sig|signature))=[^&\s]*`)
)

type redactor struct {
	masked map[string]struct{}
}

func newRedactor(opts RedactOptions) *redactor {
	m := map[string]struct{}{
		"authorization":                   {},
		"cookie":                          {},
		"set-cookie":                      {},
		"x-telegram-bot-api-secret-token": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return &redactor{masked: m}
}

// text scrubs bot tokens, secret query params and emails. Order matters:
// the token pattern is the most specific.
func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = botTokenRE.ReplaceAllString(s, "[REDACTED:token]")
	s = secretParamRE.ReplaceAllString(s, "$1=[REDACTED]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

func (r *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}
