// Package event defines the canonical OISP event model: the envelope
// every event carries, the tagged-union Data payloads for each event type,
// and the raw capture event that feeds the decoder.
package event

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ConfidenceLevel is how sure the decoder is about a parsed event's shape.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Completeness is how much of the original payload survived parsing.
type Completeness string

const (
	CompletenessFull     Completeness = "full"
	CompletenessPartial  Completeness = "partial"
	CompletenessMetadata Completeness = "metadata"
)

// Confidence records how much the consumer should trust a parsed event.
type Confidence struct {
	Level        ConfidenceLevel `json:"level"`
	Completeness Completeness    `json:"completeness"`
}

// Source identifies who produced an event.
type Source struct {
	Collector string  `json:"collector"`
	Host      *string `json:"host,omitempty"`
}

// ProcessInfo is the optional process-attribution enrichment slot.
type ProcessInfo struct {
	PID     int     `json:"pid"`
	PPID    *int    `json:"ppid,omitempty"`
	Comm    *string `json:"comm,omitempty"`
	Exe     *string `json:"exe,omitempty"`
	UID     *int    `json:"uid,omitempty"`
	Fd      *int    `json:"fd,omitempty"`
	CmdLine *string `json:"cmdline,omitempty"`
}

// AppTier classifies how confidently an app identity was resolved.
type AppTier string

const (
	AppTierProfiled   AppTier = "profiled"
	AppTierIdentified AppTier = "identified"
	AppTierUnknown    AppTier = "unknown"
)

// AppIdentity is the optional app-identification enrichment slot.
type AppIdentity struct {
	Tier     AppTier `json:"tier"`
	AppID    *string `json:"app_id,omitempty"`
	Name     *string `json:"name,omitempty"`
	Vendor   *string `json:"vendor,omitempty"`
	Category *string `json:"category,omitempty"`
	IsAIApp  *bool   `json:"is_ai_app,omitempty"`
	IsAIHost *bool   `json:"is_ai_host,omitempty"`
}

// WebContext is the optional browser-mediation enrichment slot.
type WebContext struct {
	Origin  *string `json:"origin,omitempty"`
	Referer *string `json:"referer,omitempty"`
	Mode    *string `json:"mode,omitempty"` // direct | embedded
}

// CodeSignature is the optional binary-signing enrichment slot.
type CodeSignature struct {
	Signer    *string `json:"signer,omitempty"`
	TeamID    *string `json:"team_id,omitempty"`
	Validated bool    `json:"validated"`
}

// Envelope is the fixed header present on every OISP event.
type Envelope struct {
	SchemaVersion string     `json:"schema_version"`
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	Timestamp     time.Time  `json:"timestamp"`
	Source        Source     `json:"source"`
	Confidence    Confidence `json:"confidence"`

	Process       *ProcessInfo   `json:"process,omitempty"`
	App           *AppIdentity   `json:"app,omitempty"`
	WebContext    *WebContext    `json:"web_context,omitempty"`
	CodeSignature *CodeSignature `json:"code_signature,omitempty"`
	TraceID       *string        `json:"trace_id,omitempty"`
}

// NewEnvelope constructs an envelope stamped with the given schema version
// (read once at process start from the embedded spec bundle, see
// schema.Bundle) and a fresh, time-sortable event id.
func NewEnvelope(schemaVersion, eventType, collector string) Envelope {
	return Envelope{
		SchemaVersion: schemaVersion,
		EventID:       NewEventID(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        Source{Collector: collector},
		Confidence:    Confidence{Level: ConfidenceHigh, Completeness: CompletenessFull},
	}
}

// NewEventID returns a fresh ULID, monotone within a process under the
// default entropy source and lexically sortable by creation time per the
// envelope invariant.
func NewEventID() string {
	return ulid.Make().String()
}
