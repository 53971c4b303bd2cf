// Package policy evaluates the condition DSL against events and applies
// priority-ordered, condition-matched actions (Allow/Block/Redact/Alert/Log).
package policy

// Document is the human-authored policy document, YAML or JSON.
type Document struct {
	Version  string   `yaml:"version" json:"version"`
	Policies []Policy `yaml:"policies" json:"policies"`
	Settings Settings `yaml:"settings" json:"settings"`
}

// Settings holds document-wide evaluator behavior.
type Settings struct {
	Debug         bool   `yaml:"debug" json:"debug"`
	DefaultAction string `yaml:"default_action" json:"default_action"` // allow | block | log
}

// Policy is a single declarative rule.
type Policy struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Priority    int               `yaml:"priority" json:"priority"`
	EventTypes  []string          `yaml:"event_types,omitempty" json:"event_types,omitempty"`
	Conditions  Condition         `yaml:"conditions" json:"conditions"`
	Action      Action            `yaml:"action" json:"action"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Metadata    map[string]any    `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// UnmarshalYAML defaults Enabled to true when the document omits it,
// matching "enabled (default true)" in the policy schema.
func (p *Policy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type alias Policy
	shadow := alias{Enabled: true}
	if err := unmarshal(&shadow); err != nil {
		return err
	}
	*p = Policy(shadow)
	return nil
}

// MatchesEventType reports whether this policy applies to the given event
// type: an empty EventTypes list means "all event types".
func (p Policy) MatchesEventType(eventType string) bool {
	if len(p.EventTypes) == 0 {
		return true
	}
	for _, t := range p.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// Op is a condition leaf comparison operator.
type Op string

const (
	OpEq           Op = "eq"
	OpNe           Op = "ne"
	OpGt           Op = "gt"
	OpLt           Op = "lt"
	OpGe           Op = "ge"
	OpLe           Op = "le"
	OpContains     Op = "contains"
	OpStartsWith   Op = "starts_with"
	OpMatchesRegex Op = "matches_regex"
	OpIn           Op = "in"
	OpNotIn        Op = "not_in"
)

// Condition is a tree of leaf comparisons and all/any/not combinators.
// Exactly one of the fields below is set on any given node.
type Condition struct {
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    Op     `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`

	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Condition  `yaml:"not,omitempty" json:"not,omitempty"`
}

// ActionKind discriminates an Action's behavior.
type ActionKind string

const (
	ActionAllow  ActionKind = "allow"
	ActionBlock  ActionKind = "block"
	ActionRedact ActionKind = "redact"
	ActionAlert  ActionKind = "alert"
	ActionLog    ActionKind = "log"
)

// Severity is an Alert action's severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Action is the effect a matched policy applies to an event.
type Action struct {
	Kind ActionKind `yaml:"kind" json:"kind"`

	// Block
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`

	// Redact
	Fields         []string `yaml:"fields,omitempty" json:"fields,omitempty"`
	Patterns       []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	CustomPatterns []string `yaml:"custom_patterns,omitempty" json:"custom_patterns,omitempty"`
	Replacement    string   `yaml:"replacement,omitempty" json:"replacement,omitempty"`

	// Alert
	Severity     Severity `yaml:"severity,omitempty" json:"severity,omitempty"`
	Message      string   `yaml:"message,omitempty" json:"message,omitempty"`
	WebhookURL   string   `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	IncludeEvent bool     `yaml:"include_event,omitempty" json:"include_event,omitempty"`
}
