package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
)

// Mode controls how much redaction the Engine applies.
type Mode string

const (
	ModeSafe    Mode = "safe"
	ModeFull    Mode = "full"
	ModeMinimal Mode = "minimal"
)

// Config mirrors the reference RedactionConfig field for field.
type Config struct {
	Mode               Mode
	RedactAPIKeys      bool
	RedactEmails       bool
	RedactCreditCards  bool
	RedactSSN          bool
	RedactPhoneNumbers bool
	CustomPatterns     []CustomPattern
}

// CustomPattern is a user-supplied regex + replacement appended after the
// built-ins.
type CustomPattern struct {
	Name        string
	Pattern     string
	Replacement string
}

// Result is the outcome of redacting one string.
type Result struct {
	Content        string    `json:"content"`
	Findings       []Finding `json:"findings"`
	Hash           string    `json:"hash"`
	OriginalLength int       `json:"original_length"`
}

// Engine applies the configured redaction mode to content strings.
type Engine struct {
	cfg     Config
	custom  []compiledCustom
	log     *slog.Logger
}

type compiledCustom struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// NewEngine compiles the custom patterns (skipping, and logging, any that
// fail to compile — a bad user regex must never be fatal) and returns a
// ready-to-use Engine.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{cfg: cfg, log: log}
	for _, cp := range cfg.CustomPatterns {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			log.Warn("redaction: custom pattern failed to compile, skipping",
				"name", cp.Name, "pattern", cp.Pattern, "error", err)
			continue
		}
		e.custom = append(e.custom, compiledCustom{name: cp.Name, re: re, replacement: cp.Replacement})
	}
	return e
}

// Redact applies the engine's configured mode to s.
func (e *Engine) Redact(s string) Result {
	switch e.cfg.Mode {
	case ModeFull:
		return Result{Content: s, Findings: nil, Hash: HashContent(s), OriginalLength: len(s)}
	case ModeMinimal:
		return Result{
			Content:        "[REDACTED]",
			Findings:       []Finding{{Type: "full_content", Count: 1}},
			Hash:           HashContent(s),
			OriginalLength: len(s),
		}
	default:
		return e.redactSafe(s)
	}
}

func (e *Engine) redactSafe(s string) Result {
	content := s
	counts := make(map[string]int)

	for _, p := range builtinPatterns {
		if p.enabledBy != nil && !p.enabledBy(e.cfg) {
			continue
		}
		matches := p.re.FindAllString(content, -1)
		if len(matches) == 0 {
			continue
		}
		counts[p.name] += len(matches)
		content = p.re.ReplaceAllString(content, p.replacement)
	}

	for _, cp := range e.custom {
		matches := cp.re.FindAllString(content, -1)
		if len(matches) == 0 {
			continue
		}
		name := cp.name
		if name == "" {
			name = "custom"
		}
		counts[name] += len(matches)
		replacement := cp.replacement
		if replacement == "" {
			replacement = "[CUSTOM_REDACTED]"
		}
		content = cp.re.ReplaceAllString(content, replacement)
	}

	findings := make([]Finding, 0, len(counts))
	for name, count := range counts {
		findings = append(findings, Finding{Type: name, Count: count})
	}

	return Result{
		Content:        content,
		Findings:       findings,
		Hash:           HashContent(s),
		OriginalLength: len(s),
	}
}

// HashContent computes the stable sha256 hash used for content_hash fields:
// "sha256:" followed by lowercase hex, stable across platforms.
func HashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])
}
