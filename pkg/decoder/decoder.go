// Package decoder reassembles captured HTTP/SSE byte buffers into typed AI
// request/response/streaming-chunk events, tagging provider identity and
// hashing content per the redaction mode in effect.
package decoder

import (
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/oisp-sensor/core/pkg/event"
	"github.com/oisp-sensor/core/pkg/provider"
	"github.com/oisp-sensor/core/pkg/redaction"
)

// Decoder converts RawCaptureEvents of kind SslRead/SslWrite into zero or
// one typed AI events.
type Decoder struct {
	ctx       *event.Context
	providers *provider.Store
	redactor  *redaction.Engine
	fullMode  bool
}

// New constructs a Decoder. fullMode mirrors redaction.ModeFull: when true,
// raw message content is retained inline instead of being replaced by a
// content hash.
func New(ctx *event.Context, providers *provider.Store, redactor *redaction.Engine, fullMode bool) *Decoder {
	return &Decoder{ctx: ctx, providers: providers, redactor: redactor, fullMode: fullMode}
}

// Decode parses one raw capture event. A nil, nil return means "not AI
// traffic, drop silently" — not an error.
func (d *Decoder) Decode(raw event.RawCaptureEvent) (*event.Event, error) {
	switch raw.Kind {
	case event.KindSslRead, event.KindSslWrite:
	default:
		return d.decodeSystemEvent(raw)
	}

	parsed, err := ParseHTTP(raw.Data)
	if err != nil {
		if err == ErrPartialMessage {
			return nil, nil
		}
		return nil, err
	}

	if parsed.IsStreaming {
		ev, err := d.decodeStreamingChunk(raw, parsed)
		if ev != nil {
			d.attachAttribution(ev, raw, parsed)
		}
		return ev, err
	}

	if parsed.InflateFailed {
		ev := d.partialEvent(raw, parsed)
		d.attachAttribution(&ev, raw, parsed)
		return &ev, nil
	}

	if !gjson.ValidBytes(parsed.Body) || !IsAIPayload(parsed.Body) {
		return nil, nil
	}

	if parsed.IsRequest {
		var ev event.Event
		if strings.Contains(parsed.Path, "/embeddings") {
			ev = d.decodeEmbedding(raw, parsed)
		} else {
			ev = d.decodeRequest(raw, parsed)
		}
		d.attachAttribution(&ev, raw, parsed)
		return &ev, nil
	}
	ev := d.decodeResponse(raw, parsed)
	d.attachAttribution(&ev, raw, parsed)
	return &ev, nil
}

// decodeSystemEvent maps a non-SSL capture kind onto its process/file/
// network event variant. These carry no payload to parse — everything comes
// from the capturer's attribution metadata.
func (d *Decoder) decodeSystemEvent(raw event.RawCaptureEvent) (*event.Event, error) {
	var data event.Data
	switch raw.Kind {
	case event.KindProcessExec:
		exe := ""
		if raw.Metadata.Exe != nil {
			exe = *raw.Metadata.Exe
		}
		data = &event.ProcessExecData{PID: raw.PID, PPID: raw.Metadata.PPID, Exe: exe, UID: raw.Metadata.UID}
	case event.KindProcessExit:
		data = &event.ProcessExitData{PID: raw.PID}
	case event.KindFileOpen:
		path := ""
		if raw.Metadata.Path != nil {
			path = *raw.Metadata.Path
		}
		fd := 0
		if raw.Metadata.Fd != nil {
			fd = *raw.Metadata.Fd
		}
		data = &event.FileOpenData{Path: path, Fd: fd}
	case event.KindNetConnect:
		addr := ""
		if raw.Metadata.RemoteAddr != nil {
			addr = *raw.Metadata.RemoteAddr
		} else if raw.RemoteHost != nil {
			addr = *raw.RemoteHost
		}
		port := 0
		if raw.Metadata.RemotePort != nil {
			port = *raw.Metadata.RemotePort
		} else if raw.RemotePort != nil {
			port = *raw.RemotePort
		}
		if addr == "" {
			return nil, nil
		}
		data = &event.NetworkConnectData{RemoteAddr: addr, RemotePort: port, Protocol: "tcp"}
	default:
		return nil, nil
	}

	ev := d.ctx.NewEvent(data)
	d.attachProcess(&ev, raw)
	return &ev, nil
}

// attachAttribution seeds the envelope's process and web-context slots from
// what the capturer observed, so downstream enrichers start from the
// capture-time attribution rather than re-deriving it.
func (d *Decoder) attachAttribution(ev *event.Event, raw event.RawCaptureEvent, parsed *ParsedMessage) {
	d.attachProcess(ev, raw)

	origin := parsed.Headers.Get("origin")
	referer := parsed.Headers.Get("referer")
	if origin == "" && referer == "" {
		return
	}
	wc := &event.WebContext{}
	if origin != "" {
		wc.Origin = strPtr(origin)
	}
	if referer != "" {
		wc.Referer = strPtr(referer)
	}
	if m, ok := d.providers.Get().ResolveWeb(origin, referer); ok {
		wc.Mode = strPtr(m.Mode)
	}
	ev.WebContext = wc
}

func (d *Decoder) attachProcess(ev *event.Event, raw event.RawCaptureEvent) {
	if raw.PID <= 0 {
		return
	}
	ev.Process = &event.ProcessInfo{
		PID:  raw.PID,
		PPID: raw.Metadata.PPID,
		Comm: raw.Metadata.Comm,
		Exe:  raw.Metadata.Exe,
		UID:  raw.Metadata.UID,
		Fd:   raw.Metadata.Fd,
	}
}

func (d *Decoder) decodeRequest(raw event.RawCaptureEvent, parsed *ParsedMessage) event.Event {
	root := gjson.ParseBytes(parsed.Body)
	modelID := root.Get("model").String()

	data := &event.AIRequestData{
		RequestID: uuid.NewString(),
		Provider:  event.ProviderRef{Name: string(d.resolveProvider(parsed, modelID))},
		Model:     event.Model{ID: modelID, Family: strPtr(ModelFamily(modelID))},
		Streaming: parsed.IsStreaming || root.Get("stream").Bool(),
	}

	for _, m := range root.Get("messages").Array() {
		msg := d.decodeMessage(m)
		if msg.Role == event.RoleSystem {
			data.HasSystemPrompt = true
		}
		data.Messages = append(data.Messages, msg)
	}
	data.MessagesCount = len(data.Messages)

	for _, t := range root.Get("tools").Array() {
		name := t.Get("name")
		if !name.Exists() {
			name = t.Get("function.name")
		}
		desc := t.Get("description")
		if !desc.Exists() {
			desc = t.Get("function.description")
		}
		data.Tools = append(data.Tools, event.Tool{
			Name:        name.String(),
			Type:        t.Get("type").String(),
			Description: strPtrIfPresent(desc),
		})
	}
	data.ToolsCount = len(data.Tools)

	data.Parameters = decodeParameters(root)

	ev := d.ctx.NewEvent(data)
	ev.Confidence = event.Confidence{Level: event.ConfidenceHigh, Completeness: event.CompletenessFull}
	return ev
}

func (d *Decoder) decodeResponse(raw event.RawCaptureEvent, parsed *ParsedMessage) event.Event {
	root := gjson.ParseBytes(parsed.Body)
	modelID := root.Get("model").String()

	data := &event.AIResponseData{
		RequestID: uuid.NewString(),
		Provider:  event.ProviderRef{Name: string(d.resolveProvider(parsed, modelID))},
		Model:     event.Model{ID: modelID, Family: strPtr(ModelFamily(modelID))},
		Streaming: parsed.IsStreaming,
	}

	choices := root.Get("choices")
	if choices.IsArray() && len(choices.Array()) > 0 {
		first := choices.Array()[0]
		if fr := first.Get("finish_reason"); fr.Exists() {
			data.FinishReason = event.FinishReason(finishReasonFromString(fr.String()))
		}
		if msg := first.Get("message"); msg.Exists() {
			data.Messages = append(data.Messages, d.decodeMessage(msg))
			for _, tc := range msg.Get("tool_calls").Array() {
				data.ToolCalls = append(data.ToolCalls, event.ToolCall{
					ID:        tc.Get("id").String(),
					Name:      tc.Get("function.name").String(),
					Arguments: tc.Get("function.arguments").String(),
				})
			}
		}
	}
	data.MessagesCount = len(data.Messages)
	data.ToolCallsCount = len(data.ToolCalls)

	if usage := root.Get("usage"); usage.Exists() {
		data.Usage = decodeUsage(usage)
	}

	ev := d.ctx.NewEvent(data)
	ev.Confidence = event.Confidence{Level: event.ConfidenceHigh, Completeness: event.CompletenessFull}
	return ev
}

func (d *Decoder) decodeStreamingChunk(raw event.RawCaptureEvent, parsed *ParsedMessage) (*event.Event, error) {
	frames := SplitSSE(parsed.Body)
	if len(frames) == 0 {
		return nil, nil
	}
	// Emit only the first frame here; the pipeline calls Decode once per raw
	// capture event, so a capturer delivering one raw event per SSE frame
	// (the common case) yields one ai.streaming_chunk each. A capturer that
	// batches multiple frames per raw event only surfaces the first; the
	// remainder round-trips through the next raw event's capture.
	frame := frames[0]
	data := &event.AIStreamingChunkData{
		RequestID: uuid.NewString(),
		Sequence:  frame.Sequence,
	}
	if frame.Data != "" && frame.Data != "[DONE]" {
		if d.fullMode {
			data.Delta = strPtr(frame.Data)
		}
		hash := redaction.HashContent(frame.Data)
		data.DeltaHash = &hash
		length := len(frame.Data)
		data.DeltaLength = &length
	}
	ev := d.ctx.NewEvent(data)
	return &ev, nil
}

func (d *Decoder) partialEvent(raw event.RawCaptureEvent, parsed *ParsedMessage) event.Event {
	data := &event.AIRequestData{RequestID: uuid.NewString()}
	if parsed.IsRequest {
		ev := d.ctx.NewEvent(data)
		ev.Confidence = event.Confidence{Level: event.ConfidenceLow, Completeness: event.CompletenessPartial}
		return ev
	}
	respData := &event.AIResponseData{RequestID: uuid.NewString()}
	ev := d.ctx.NewEvent(respData)
	ev.Confidence = event.Confidence{Level: event.ConfidenceLow, Completeness: event.CompletenessPartial}
	return ev
}

// decodeEmbedding maps an embeddings request body onto ai.embedding: the
// input text is never retained inline, only counted and hashed.
func (d *Decoder) decodeEmbedding(raw event.RawCaptureEvent, parsed *ParsedMessage) event.Event {
	root := gjson.ParseBytes(parsed.Body)
	modelID := root.Get("model").String()

	data := &event.AIEmbeddingData{
		RequestID: uuid.NewString(),
		Provider:  event.ProviderRef{Name: string(d.resolveProvider(parsed, modelID))},
		Model:     event.Model{ID: modelID, Family: strPtr(ModelFamily(modelID))},
	}

	input := root.Get("input")
	switch {
	case input.IsArray():
		data.InputCount = len(input.Array())
		var joined strings.Builder
		for _, part := range input.Array() {
			joined.WriteString(part.String())
		}
		hash := redaction.HashContent(joined.String())
		data.InputHash = &hash
	case input.Exists():
		data.InputCount = 1
		hash := redaction.HashContent(input.String())
		data.InputHash = &hash
	}

	return d.ctx.NewEvent(data)
}

func (d *Decoder) decodeMessage(m gjson.Result) event.Message {
	content := m.Get("content")
	role := event.MessageRole(m.Get("role").String())
	msg := event.Message{Role: role}

	switch {
	case content.Exists() && content.Type == gjson.String:
		setMessageContent(&msg, content.String(), d.fullMode)
	case content.IsArray():
		// Multimodal content: text parts are concatenated for hashing,
		// image parts only flagged — image bytes never enter the event.
		var text strings.Builder
		hasImages := false
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "image_url", "image":
				hasImages = true
			case "text":
				text.WriteString(part.Get("text").String())
			}
		}
		if text.Len() > 0 {
			setMessageContent(&msg, text.String(), d.fullMode)
		}
		if hasImages {
			msg.HasImages = &hasImages
		}
	}
	if tc := m.Get("tool_call_id"); tc.Exists() {
		msg.ToolCallID = strPtr(tc.String())
	}
	if n := m.Get("name"); n.Exists() {
		msg.Name = strPtr(n.String())
	}
	return msg
}

func setMessageContent(msg *event.Message, s string, fullMode bool) {
	if fullMode {
		msg.Content = strPtr(s)
	}
	hash := redaction.HashContent(s)
	msg.ContentHash = &hash
	length := len(s)
	msg.ContentLength = &length
}

// decodeParameters lifts well-known sampling parameters off the request
// body; provider-specific extras are deliberately not swept up wholesale.
func decodeParameters(root gjson.Result) map[string]any {
	params := make(map[string]any)
	for _, key := range []string{"temperature", "max_tokens", "max_completion_tokens", "top_p", "top_k", "stream", "n", "seed"} {
		if v := root.Get(key); v.Exists() {
			params[key] = v.Value()
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

func decodeUsage(u gjson.Result) *event.Usage {
	get := func(key string) *int {
		if v := u.Get(key); v.Exists() {
			n := int(v.Int())
			return &n
		}
		return nil
	}
	return &event.Usage{
		PromptTokens:     get("prompt_tokens"),
		CompletionTokens: get("completion_tokens"),
		TotalTokens:      get("total_tokens"),
		CachedTokens:     get("cached_tokens"),
		ReasoningTokens:  get("reasoning_tokens"),
	}
}

// resolveProvider tags provider identity from, in order: (a) request Host
// header via the domain registry, (b) the Authorization/x-api-key/api-key
// header via the key-prefix registry, (c) the model id prefix — the
// earliest source that resolves wins, per "highest-confidence source wins".
func (d *Decoder) resolveProvider(parsed *ParsedMessage, modelID string) provider.Provider {
	reg := d.providers.Get()

	if parsed.Host != "" {
		if p, ok := reg.ResolveDomain(parsed.Host); ok {
			return p
		}
	}

	for _, header := range []string{"authorization", "x-api-key", "api-key"} {
		if v := parsed.Headers.Get(header); v != "" {
			key := strings.TrimPrefix(v, "Bearer ")
			if p, ok := reg.ResolveKey(key); ok {
				return p
			}
		}
	}

	if modelID != "" {
		if p, ok := provider.ResolveModelPrefix(modelID); ok {
			return p
		}
	}
	return provider.Unknown
}

func strPtr(s string) *string { return &s }

func strPtrIfPresent(r gjson.Result) *string {
	if !r.Exists() {
		return nil
	}
	s := r.String()
	return &s
}
