package event

import (
	"encoding/json"
	"fmt"
)

// Data is implemented by every event-type payload. It is a closed set in
// practice (see the type switch in MarshalJSON/UnmarshalJSON) but kept as an
// interface rather than a plain enum so each payload stays its own Go type —
// a tagged variant of a fixed set, not a reflection-driven blob.
type Data interface {
	EventType() string
}

// Event is the canonical OISP event: an envelope plus its typed payload.
// JSON representation flattens the envelope and the payload's fields into a
// single object, matching the wire shape consumers and the cloud API expect.
type Event struct {
	Envelope
	Data Data
}

// IsAIEvent reports whether this event's type belongs to the ai.* namespace.
func (e Event) IsAIEvent() bool {
	switch e.Data.(type) {
	case *AIRequestData, *AIResponseData, *AIStreamingChunkData, *AIEmbeddingData:
		return true
	default:
		return false
	}
}

// MarshalJSON flattens the envelope and dispatches to the payload's own
// field set via a plain struct embed, so unknown future readers just see one
// flat object per the published schema.
func (e Event) MarshalJSON() ([]byte, error) {
	envJSON, err := json.Marshal(e.Envelope)
	if err != nil {
		return nil, err
	}
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}

	var envMap map[string]json.RawMessage
	if err := json.Unmarshal(envJSON, &envMap); err != nil {
		return nil, err
	}
	var dataMap map[string]json.RawMessage
	if err := json.Unmarshal(dataJSON, &dataMap); err != nil {
		return nil, err
	}
	for k, v := range dataMap {
		envMap[k] = v
	}
	return json.Marshal(envMap)
}

// UnmarshalJSON dispatches on event_type to construct the correct Data
// payload. Unrecognized event types round-trip through OtherData rather than
// failing: decoders are liberal, encoders are strict.
func (e *Event) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &e.Envelope); err != nil {
		return fmt.Errorf("event: envelope: %w", err)
	}

	data, err := unmarshalData(e.Envelope.EventType, b)
	if err != nil {
		return err
	}
	e.Data = data
	return nil
}

func unmarshalData(eventType string, raw []byte) (Data, error) {
	var d Data
	switch eventType {
	case EventTypeAIRequest:
		d = &AIRequestData{}
	case EventTypeAIResponse:
		d = &AIResponseData{}
	case EventTypeAIStreamingChunk:
		d = &AIStreamingChunkData{}
	case EventTypeAIEmbedding:
		d = &AIEmbeddingData{}
	case EventTypeAgentToolCall:
		d = &AgentToolCallData{}
	case EventTypeAgentToolResult:
		d = &AgentToolResultData{}
	case EventTypeProcessExec:
		d = &ProcessExecData{}
	case EventTypeProcessExit:
		d = &ProcessExitData{}
	case EventTypeProcessFork:
		d = &ProcessForkData{}
	case EventTypeFileOpen:
		d = &FileOpenData{}
	case EventTypeFileRead:
		d = &FileReadData{}
	case EventTypeFileWrite:
		d = &FileWriteData{}
	case EventTypeFileClose:
		d = &FileCloseData{}
	case EventTypeNetworkConnect:
		d = &NetworkConnectData{}
	case EventTypeNetworkAccept:
		d = &NetworkAcceptData{}
	case EventTypeNetworkFlow:
		d = &NetworkFlowData{}
	case EventTypeNetworkDNS:
		d = &NetworkDNSData{}
	default:
		other := &OtherData{Type: eventType}
		if err := json.Unmarshal(raw, other); err != nil {
			return nil, fmt.Errorf("event: other payload: %w", err)
		}
		return other, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("event: %s payload: %w", eventType, err)
	}
	return d, nil
}

// Event type discriminants, dotted-namespace per the published schema.
const (
	EventTypeAIRequest        = "ai.request"
	EventTypeAIResponse       = "ai.response"
	EventTypeAIStreamingChunk = "ai.streaming_chunk"
	EventTypeAIEmbedding      = "ai.embedding"
	EventTypeAgentToolCall    = "agent.tool_call"
	EventTypeAgentToolResult  = "agent.tool_result"
	EventTypeProcessExec      = "process.exec"
	EventTypeProcessExit      = "process.exit"
	EventTypeProcessFork      = "process.fork"
	EventTypeFileOpen         = "file.open"
	EventTypeFileRead         = "file.read"
	EventTypeFileWrite        = "file.write"
	EventTypeFileClose        = "file.close"
	EventTypeNetworkConnect   = "network.connect"
	EventTypeNetworkAccept    = "network.accept"
	EventTypeNetworkFlow      = "network.flow"
	EventTypeNetworkDNS       = "network.dns"
)

// OtherData is the catch-all payload for event types this build does not
// recognize. It preserves the raw fields so an event can still be forwarded,
// logged, or re-exported without data loss.
type OtherData struct {
	Type   string          `json:"-"`
	Fields json.RawMessage `json:"-"`
}

func (d *OtherData) EventType() string { return d.Type }

func (d *OtherData) UnmarshalJSON(b []byte) error {
	d.Fields = append([]byte(nil), b...)
	return nil
}

func (d OtherData) MarshalJSON() ([]byte, error) {
	if d.Fields == nil {
		return []byte("{}"), nil
	}
	return d.Fields, nil
}
