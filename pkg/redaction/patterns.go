// Package redaction scrubs secrets and PII out of captured AI traffic
// content and computes stable content hashes, per the three redaction
// modes (Safe, Full, Minimal).
package redaction

import "regexp"

// Finding names a single matched pattern type and how many times it fired.
type Finding struct {
	Type  string `json:"finding_type"`
	Count int    `json:"count"`
}

type builtinPattern struct {
	name        string
	re          *regexp.Regexp
	replacement string
	// enabledBy reports whether this pattern is active under the given
	// config flags; nil means always enabled.
	enabledBy func(c Config) bool
}

// Built-in pattern set, ported 1:1 from the reference redaction engine.
var builtinPatterns = []builtinPattern{
	{
		name:        "openai_key",
		re:          regexp.MustCompile(`sk-proj-[a-zA-Z0-9]{20,}`),
		replacement: "[API_KEY_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "openai_key",
		re:          regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		replacement: "[API_KEY_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "anthropic_key",
		re:          regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
		replacement: "[API_KEY_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "generic_api_key",
		re:          regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key)\s*[:=]\s*['\"]?[a-zA-Z0-9_\-]{16,}['\"]?`),
		replacement: "[API_KEY_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "bearer_token",
		re:          regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.=-]{20,}`),
		replacement: "[API_KEY_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "jwt",
		re:          regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
		replacement: "[JWT_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "aws_key",
		re:          regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		replacement: "[AWS_KEY_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "github_token",
		re:          regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`),
		replacement: "[GITHUB_TOKEN_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "slack_token",
		re:          regexp.MustCompile(`xox[baprs]-[0-9a-zA-Z-]+`),
		replacement: "[SLACK_TOKEN_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactAPIKeys },
	},
	{
		name:        "email",
		re:          regexp.MustCompile(`[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+`),
		replacement: "[EMAIL_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactEmails },
	},
	{
		name:        "credit_card",
		re:          regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`),
		replacement: "[CREDIT_CARD_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactCreditCards },
	},
	{
		name:        "ssn",
		re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "[SSN_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactSSN },
	},
	{
		name:        "phone_number",
		re:          regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
		replacement: "[PHONE_REDACTED]",
		enabledBy:   func(c Config) bool { return c.RedactPhoneNumbers },
	},
}

// keyPrefixes are known API-key prefixes used to extract a stable, safe
// prefix for logging/diagnostics without exposing the full secret.
var keyPrefixes = []string{"sk-proj-", "sk-ant-", "sk-", "gsk_", "hf_", "r8_", "pplx-"}

// ExtractKeyPrefix returns the longest known key prefix that s starts with,
// or "" if none match.
func ExtractKeyPrefix(s string) string {
	best := ""
	for _, p := range keyPrefixes {
		if len(p) > len(best) && hasPrefix(s, p) {
			best = p
		}
	}
	return best
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
