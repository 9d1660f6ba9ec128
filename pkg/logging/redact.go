package logging

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor scrubs credentials out of text before it is logged.
type Redactor struct {
	knownSecrets []string
	patterns     []*regexp.Regexp
}

// NewRedactor creates a redactor knowing the provided secrets.
func NewRedactor(secrets []string) *Redactor {
	known := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			known = append(known, s)
		}
	}

	return &Redactor{
		knownSecrets: known,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(Bearer\s+)([a-zA-Z0-9\-\._~+/:]+=*)`),
			regexp.MustCompile(`(?i)("?X-Auth-(?:ApiKey|Token)"?\s*[:=]\s*"?)([^"\s,}]+)`),
		},
	}
}

// Redact replaces secrets in the input string.
func (r *Redactor) Redact(input string) string {
	if r == nil {
		return input
	}
	res := input

	for _, secret := range r.knownSecrets {
		res = strings.ReplaceAll(res, secret, redacted)
	}

	for _, re := range r.patterns {
		res = re.ReplaceAllString(res, "${1}"+redacted)
	}

	return res
}

// Truncate shortens s to at most n bytes for log output.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
