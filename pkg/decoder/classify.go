package decoder

import (
	"strings"

	"github.com/tidwall/gjson"
)

// IsAIPayload classifies a JSON body as AI traffic: it has a "model" field
// and at least one of "messages", "prompt", or "input".
func IsAIPayload(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	root := gjson.ParseBytes(body)
	if !root.Get("model").Exists() {
		return false
	}
	return root.Get("messages").Exists() || root.Get("prompt").Exists() || root.Get("input").Exists()
}

// ModelFamily derives a model's family by prefix rule, per the published
// schema's model-family derivation ("gpt-4*" -> "gpt-4", "claude-3*" ->
// "claude-3", ...).
func ModelFamily(modelID string) string {
	lower := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(lower, "gpt-4"):
		return "gpt-4"
	case strings.HasPrefix(lower, "gpt-3.5"):
		return "gpt-3.5"
	case strings.HasPrefix(lower, "claude-3"):
		return "claude-3"
	case strings.HasPrefix(lower, "claude-2"):
		return "claude-2"
	case strings.HasPrefix(lower, "gemini"):
		return "gemini"
	case strings.HasPrefix(lower, "o1"):
		return "o1"
	case strings.HasPrefix(lower, "o3"):
		return "o3"
	case strings.HasPrefix(lower, "command"):
		return "command"
	case strings.HasPrefix(lower, "deepseek"):
		return "deepseek"
	default:
		return modelID
	}
}

// FinishReasonFromString maps a provider's raw finish_reason string to the
// canonical event.FinishReason, defaulting unrecognized values to "other"
// per the decoder's edge-case handling.
func finishReasonFromString(s string) string {
	switch strings.ToLower(s) {
	case "stop", "end_turn", "complete":
		return "stop"
	case "length", "max_tokens":
		return "length"
	case "tool_calls", "function_call":
		return "tool_calls"
	case "content_filter":
		return "content_filter"
	default:
		return "other"
	}
}
