package provider

// DefaultConfigs seeds the registry with the provider table.
func DefaultConfigs() []Config {
	return []Config{
		{
			Provider:    OpenAI,
			Domains:     []string{"api.openai.com"},
			KeyPrefixes: []string{"sk-", "sk-proj-", "sk-svcacct-"},
			AuthHeader:  "Authorization",
		},
		{
			Provider:    Anthropic,
			Domains:     []string{"api.anthropic.com"},
			KeyPrefixes: []string{"sk-ant-"},
			AuthHeader:  "x-api-key",
		},
		{
			Provider: Google,
			Domains:  []string{"generativelanguage.googleapis.com", "aiplatform.googleapis.com"},
		},
		{
			Provider:       AzureOpenAI,
			DomainPatterns: []string{"*.openai.azure.com"},
			AuthHeader:     "api-key",
		},
		{
			Provider:       AwsBedrock,
			DomainPatterns: []string{"bedrock-runtime.*.amazonaws.com", "bedrock.*.amazonaws.com"},
		},
		{
			Provider:   Cohere,
			Domains:    []string{"api.cohere.ai", "api.cohere.com"},
			AuthHeader: "Authorization",
		},
		{
			Provider: Mistral,
			Domains:  []string{"api.mistral.ai"},
		},
		{
			Provider:    Groq,
			Domains:     []string{"api.groq.com"},
			KeyPrefixes: []string{"gsk_"},
		},
		{
			Provider: Together,
			Domains:  []string{"api.together.xyz"},
		},
		{
			Provider: Fireworks,
			Domains:  []string{"api.fireworks.ai"},
		},
		{
			Provider:    Replicate,
			Domains:     []string{"api.replicate.com"},
			KeyPrefixes: []string{"r8_"},
		},
		{
			Provider:    HuggingFace,
			Domains:     []string{"api-inference.huggingface.co"},
			KeyPrefixes: []string{"hf_"},
		},
		{
			Provider:    Perplexity,
			Domains:     []string{"api.perplexity.ai"},
			KeyPrefixes: []string{"pplx-"},
		},
		{
			Provider: DeepSeek,
			Domains:  []string{"api.deepseek.com"},
		},
		{
			Provider:       Ollama,
			Domains:        []string{"localhost:11434", "127.0.0.1:11434"},
			DomainPatterns: []string{"*.local:11434"},
		},
		{
			Provider: LmStudio,
			Domains:  []string{"localhost:1234", "127.0.0.1:1234"},
		},
	}
}

// DefaultWebApps seeds the web-app sub-registry used to classify
// browser-mediated AI traffic as direct vs embedded.
func DefaultWebApps() []WebAppConfig {
	return []WebAppConfig{
		{Name: "ChatGPT", Origins: []string{"https://chat.openai.com", "https://chatgpt.com"}, Mode: "direct"},
		{Name: "Claude.ai", Origins: []string{"https://claude.ai"}, Mode: "direct"},
		{Name: "Google AI Studio", Origins: []string{"https://aistudio.google.com"}, Mode: "direct"},
	}
}

// modelPrefixFamilies maps a model id prefix to the provider it implies,
// used by the decoder when no domain or key-prefix signal is available.
var modelPrefixFamilies = []struct {
	prefix   string
	provider Provider
}{
	{"claude", Anthropic},
	{"gpt-", OpenAI},
	{"o1", OpenAI},
	{"o3", OpenAI},
	{"gemini", Google},
	{"command", Cohere},
	{"mistral", Mistral},
	{"llama", OpenAICompatible},
	{"deepseek", DeepSeek},
}

// ResolveModelPrefix maps a model id to a Provider by prefix, the
// decoder's lowest-confidence provider-tagging source.
func ResolveModelPrefix(modelID string) (Provider, bool) {
	for _, f := range modelPrefixFamilies {
		if hasPrefixFold(modelID, f.prefix) {
			return f.provider, true
		}
	}
	return Unknown, false
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
