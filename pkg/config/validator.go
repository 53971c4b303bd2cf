package config

import "fmt"

// Validate checks cross-field invariants that yaml tags alone can't express.
func Validate(c *Config) error {
	switch c.Redaction.Mode {
	case "safe", "full", "minimal":
	default:
		return NewValidationError("redaction", "mode", fmt.Errorf("%w: must be safe, full, or minimal", ErrInvalidValue))
	}

	for _, p := range c.Redaction.CustomPatterns {
		if p.Name == "" {
			return NewValidationError("redaction", "custom_patterns", ErrMissingRequiredField)
		}
		if p.Pattern == "" {
			return NewValidationError("redaction", "custom_patterns["+p.Name+"].pattern", ErrMissingRequiredField)
		}
	}

	switch c.Policy.DefaultAction {
	case "allow", "block", "log":
	default:
		return NewValidationError("policy", "default_action", fmt.Errorf("%w: must be allow, block, or log", ErrInvalidValue))
	}

	if c.Pipeline.CaptureBuffer <= 0 || c.Pipeline.DecodeBuffer <= 0 || c.Pipeline.EnrichBuffer <= 0 ||
		c.Pipeline.ActionBuffer <= 0 || c.Pipeline.ExportBuffer <= 0 {
		return NewValidationError("pipeline", "", fmt.Errorf("%w: stage buffers must be positive", ErrInvalidValue))
	}

	if c.Cloud.Enabled {
		if c.Cloud.BaseURL == "" {
			return NewValidationError("cloud", "base_url", ErrMissingRequiredField)
		}
		if c.Cloud.APIKey == "" && c.Cloud.EnrollmentToken == "" {
			return NewValidationError("cloud", "api_key", fmt.Errorf("%w: one of api_key or enrollment_token is required when cloud is enabled", ErrMissingRequiredField))
		}
		if c.Cloud.OfflineQueue.MaxEvents <= 0 {
			return NewValidationError("cloud", "offline_queue.max_events", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}

	return nil
}
