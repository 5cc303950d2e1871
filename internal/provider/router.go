package provider

import "strings"

// ID is the closed enumeration of supported provider identities
// (spec.md §3 ProviderIdentity). Each has a stable short identifier
// string used as both the model prefix and the wire identifier in
// /providers and /v1/models.
type ID int

const (
	OpenAI ID = iota
	Anthropic
	Gemini
	Kimi
	OpenRouter
	Vercel
	Groq
	DeepSeek
	XAI
	Mistral
	Cohere
	Azure
	Bedrock
	Vertex
)

// allIDs is the registration order used everywhere ordering matters:
// /providers listing and the aggregate /v1/models first-error tie-break
// (spec.md §4.C: "Ordering of all() is the enumeration's declaration
// order and must be stable across calls").
var allIDs = []ID{
	OpenAI, Anthropic, Gemini, Kimi, OpenRouter, Vercel, Groq,
	DeepSeek, XAI, Mistral, Cohere, Azure, Bedrock, Vertex,
}

// String returns the stable short identifier used as the model prefix.
func (id ID) String() string {
	switch id {
	case OpenAI:
		return "openai"
	case Anthropic:
		return "anthropic"
	case Gemini:
		return "gemini"
	case Kimi:
		return "kimi"
	case OpenRouter:
		return "openrouter"
	case Vercel:
		return "vercel"
	case Groq:
		return "groq"
	case DeepSeek:
		return "deepseek"
	case XAI:
		return "xai"
	case Mistral:
		return "mistral"
	case Cohere:
		return "cohere"
	case Azure:
		return "azure"
	case Bedrock:
		return "bedrock"
	case Vertex:
		return "vertex"
	default:
		return "unknown"
	}
}

// Parse accepts a bare provider identifier case-insensitively, plus the
// documented "azure-openai" alias for Azure, and returns the matching ID.
// The bool is false when value names no known provider.
func Parse(value string) (ID, bool) {
	switch strings.ToLower(value) {
	case "openai":
		return OpenAI, true
	case "anthropic":
		return Anthropic, true
	case "gemini":
		return Gemini, true
	case "kimi":
		return Kimi, true
	case "openrouter":
		return OpenRouter, true
	case "vercel":
		return Vercel, true
	case "groq":
		return Groq, true
	case "deepseek":
		return DeepSeek, true
	case "xai":
		return XAI, true
	case "mistral":
		return Mistral, true
	case "cohere":
		return Cohere, true
	case "azure", "azure-openai":
		return Azure, true
	case "bedrock":
		return Bedrock, true
	case "vertex":
		return Vertex, true
	default:
		return 0, false
	}
}

// ResolveModel parses a client-supplied model string into a provider
// identity and the upstream model name, per spec.md §4.D. First match
// wins:
//  1. a known "<id>/<rest>" prefix strips to (id, rest)
//  2. a heuristic prefix match on the lowercased model name returns
//     (id, original-case model string)
//  3. fallback: (OpenAI, original model string)
func ResolveModel(model string) (ID, string) {
	for _, id := range allIDs {
		prefix := id.String() + "/"
		if strings.HasPrefix(model, prefix) {
			return id, strings.TrimPrefix(model, prefix)
		}
	}

	lower := strings.ToLower(model)

	switch {
	case strings.HasPrefix(lower, "claude"):
		return Anthropic, model
	case strings.HasPrefix(lower, "gemini"):
		return Gemini, model
	case strings.HasPrefix(lower, "kimi"):
		return Kimi, model
	case strings.HasPrefix(lower, "deepseek"):
		return DeepSeek, model
	case strings.HasPrefix(lower, "grok"):
		return XAI, model
	case strings.HasPrefix(lower, "mistral"),
		strings.HasPrefix(lower, "ministral"),
		strings.HasPrefix(lower, "codestral"):
		return Mistral, model
	case strings.HasPrefix(lower, "command"):
		return Cohere, model
	default:
		return OpenAI, model
	}
}
