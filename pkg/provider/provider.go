// Package provider resolves a network endpoint or API-key prefix to a known
// AI provider identity, and classifies browser-mediated traffic as direct or
// embedded via a small web-app sub-registry.
package provider

// Provider is a known AI endpoint operator.
type Provider string

const (
	OpenAI          Provider = "openai"
	Anthropic       Provider = "anthropic"
	Google          Provider = "google"
	AzureOpenAI     Provider = "azure_openai"
	AwsBedrock      Provider = "aws_bedrock"
	Cohere          Provider = "cohere"
	Mistral         Provider = "mistral"
	Groq            Provider = "groq"
	Together        Provider = "together"
	Fireworks       Provider = "fireworks"
	Replicate       Provider = "replicate"
	HuggingFace     Provider = "huggingface"
	Perplexity      Provider = "perplexity"
	DeepSeek        Provider = "deepseek"
	Ollama          Provider = "ollama"
	LmStudio        Provider = "lmstudio"
	Vllm            Provider = "vllm"
	OpenAICompatible Provider = "openai_compatible"
	Unknown         Provider = "unknown"
)

// DisplayName returns the human-facing provider name.
func (p Provider) DisplayName() string {
	switch p {
	case OpenAI:
		return "OpenAI"
	case Anthropic:
		return "Anthropic"
	case Google:
		return "Google"
	case AzureOpenAI:
		return "Azure OpenAI"
	case AwsBedrock:
		return "AWS Bedrock"
	case Cohere:
		return "Cohere"
	case Mistral:
		return "Mistral"
	case Groq:
		return "Groq"
	case Together:
		return "Together AI"
	case Fireworks:
		return "Fireworks AI"
	case Replicate:
		return "Replicate"
	case HuggingFace:
		return "Hugging Face"
	case Perplexity:
		return "Perplexity"
	case DeepSeek:
		return "DeepSeek"
	case Ollama:
		return "Ollama"
	case LmStudio:
		return "LM Studio"
	case Vllm:
		return "vLLM"
	case OpenAICompatible:
		return "OpenAI-Compatible"
	default:
		return "Unknown"
	}
}

// IsLocal reports whether this provider runs on the local host rather than a
// hosted cloud endpoint.
func (p Provider) IsLocal() bool {
	switch p {
	case Ollama, LmStudio, Vllm:
		return true
	default:
		return false
	}
}

// Config is the detection rule set for a single provider.
type Config struct {
	Provider      Provider
	Domains       []string // exact-match hostnames
	DomainPatterns []string // glob patterns, e.g. "*.openai.azure.com"
	KeyPrefixes   []string
	AuthHeader    string // empty when no distinguishing header is used
}
