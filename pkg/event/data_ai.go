package event

// ProviderRef identifies the AI provider a request/response was addressed to.
// This mirrors pkg/provider.Provider but stays a plain value here so the
// event model has no import-time dependency on the registry.
type ProviderRef struct {
	Name      string  `json:"name"`
	Endpoint  *string `json:"endpoint,omitempty"`
	Region    *string `json:"region,omitempty"`
	OrgID     *string `json:"org_id,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
}

// Model describes the AI model addressed by a request or response.
type Model struct {
	ID            string  `json:"id"`
	Family        *string `json:"family,omitempty"`
	ContextWindow *int    `json:"context_window,omitempty"`
}

// MessageRole is the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
	RoleFunction  MessageRole = "function"
)

// Message is a single chat turn. Content is present only when redaction
// mode permits inline content; otherwise ContentHash/ContentLength stand in,
// per the envelope invariant that large or sensitive content never appears
// inline.
type Message struct {
	Role          MessageRole `json:"role"`
	Content       *string     `json:"content,omitempty"`
	ContentHash   *string     `json:"content_hash,omitempty"`
	ContentLength *int        `json:"content_length,omitempty"`
	HasImages     *bool       `json:"has_images,omitempty"`
	ToolCallID    *string     `json:"tool_call_id,omitempty"`
	Name          *string     `json:"name,omitempty"`
}

// Tool describes a tool/function made available to the model.
type Tool struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description *string `json:"description,omitempty"`
}

// ToolCall is a model-issued invocation of a Tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is token accounting, present on responses (and some streaming
// terminal chunks).
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
	CachedTokens     *int `json:"cached_tokens,omitempty"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty"`
}

// FinishReason is the terminal state of a response or streaming chunk.
// Unrecognized values from upstream providers decode to FinishOther rather
// than failing.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
	FinishOther          FinishReason = "other"
)

// AIRequestData is the payload for event type "ai.request".
type AIRequestData struct {
	RequestID     string      `json:"request_id"`
	Provider      ProviderRef `json:"provider"`
	Model         Model       `json:"model"`
	Messages      []Message   `json:"messages,omitempty"`
	MessagesCount int         `json:"messages_count"`
	Tools         []Tool      `json:"tools,omitempty"`
	ToolsCount    int         `json:"tools_count"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Streaming     bool        `json:"streaming"`
	HasSystemPrompt bool      `json:"has_system_prompt"`
}

func (*AIRequestData) EventType() string { return EventTypeAIRequest }

// AIResponseData is the payload for event type "ai.response".
type AIResponseData struct {
	RequestID     string        `json:"request_id"`
	Provider      ProviderRef   `json:"provider"`
	Model         Model         `json:"model"`
	Messages      []Message     `json:"messages,omitempty"`
	MessagesCount int           `json:"messages_count"`
	ToolCalls     []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallsCount int          `json:"tool_calls_count"`
	Usage         *Usage        `json:"usage,omitempty"`
	FinishReason  FinishReason  `json:"finish_reason,omitempty"`
	Streaming     bool          `json:"streaming"`
}

func (*AIResponseData) EventType() string { return EventTypeAIResponse }

// AIStreamingChunkData is the payload for one SSE "data:" frame of a
// streaming response; emitted one-per-frame rather than buffered whole.
type AIStreamingChunkData struct {
	RequestID    string        `json:"request_id"`
	Provider     ProviderRef   `json:"provider"`
	Sequence     int           `json:"sequence"`
	Delta        *string       `json:"delta,omitempty"`
	DeltaHash    *string       `json:"delta_hash,omitempty"`
	DeltaLength  *int          `json:"delta_length,omitempty"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
}

func (*AIStreamingChunkData) EventType() string { return EventTypeAIStreamingChunk }

// AIEmbeddingData is the payload for event type "ai.embedding".
type AIEmbeddingData struct {
	RequestID   string      `json:"request_id"`
	Provider    ProviderRef `json:"provider"`
	Model       Model       `json:"model"`
	InputCount  int         `json:"input_count"`
	InputHash   *string     `json:"input_hash,omitempty"`
	Dimensions  *int        `json:"dimensions,omitempty"`
	Usage       *Usage      `json:"usage,omitempty"`
}

func (*AIEmbeddingData) EventType() string { return EventTypeAIEmbedding }
