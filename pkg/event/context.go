package event

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed schema/bundle.json
var bundleFS embed.FS

// SpecBundle is the embedded document defining the active schema version.
// It is read once at startup and threaded through as part of a Context
// value rather than cached behind a package-level singleton.
type SpecBundle struct {
	SchemaVersion string `json:"schema_version"`
	Description   string `json:"description"`
}

// LoadSpecBundle reads and parses the embedded spec bundle.
func LoadSpecBundle() (SpecBundle, error) {
	raw, err := bundleFS.ReadFile("schema/bundle.json")
	if err != nil {
		return SpecBundle{}, fmt.Errorf("event: read spec bundle: %w", err)
	}
	var b SpecBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return SpecBundle{}, fmt.Errorf("event: parse spec bundle: %w", err)
	}
	if b.SchemaVersion == "" {
		return SpecBundle{}, fmt.Errorf("event: spec bundle missing schema_version")
	}
	return b, nil
}

// Context is the single value constructed at startup and passed by
// reference through the pipeline. It replaces the global statics / lazy
// singletons the original relies on for schema version and collector
// identity.
type Context struct {
	Bundle    SpecBundle
	Collector string
}

// NewContext loads the spec bundle and pairs it with the collector name this
// process identifies itself as in every envelope's Source.
func NewContext(collector string) (*Context, error) {
	bundle, err := LoadSpecBundle()
	if err != nil {
		return nil, err
	}
	return &Context{Bundle: bundle, Collector: collector}, nil
}

// NewEvent builds an Event with a freshly stamped envelope for the given
// data payload.
func (c *Context) NewEvent(data Data) Event {
	return Event{
		Envelope: NewEnvelope(c.Bundle.SchemaVersion, data.EventType(), c.Collector),
		Data:     data,
	}
}
