// Package provider defines the canonical request/response shapes and the
// Adapter interface every upstream LLM provider satisfies, plus the
// routing and registry logic that dispatch a client's model string to one.
//
// Every upstream (OpenAI, Anthropic, Gemini, Kimi, and the rest of the
// fourteen-provider enumeration) implements Adapter. The HTTP handlers in
// internal/server never know which provider is actually handling a
// request — they decode JSON into the canonical shapes below, resolve an
// Adapter via the router and registry, and let the adapter translate.
package provider

import (
	"context"
	"encoding/json"

	"github.com/howard-nolan/llmrouter/internal/gatewayerr"
)

// Adapter is the interface every provider implementation satisfies,
// covering the three capabilities from spec.md §4.B.
type Adapter interface {
	// Name returns the provider identifier, e.g. "openai" or "anthropic".
	Name() ID

	// FetchModels returns the canonical model list for this provider.
	FetchModels(ctx context.Context, apiKey string) (json.RawMessage, error)

	// ChatCompletion sends a buffered (non-streaming) chat completion
	// request and returns the canonical chat-completion JSON.
	ChatCompletion(ctx context.Context, apiKey string, req json.RawMessage) (json.RawMessage, error)

	// ChatCompletionStream sends a streaming chat completion request and
	// returns a channel of raw SSE frames in canonical
	// chat-completion-chunk form (already framed as "data: ...\n\n",
	// terminated by a final "data: [DONE]\n\n" chunk).
	//
	// The channel is closed when the stream ends, whether cleanly or due
	// to an error (in which case the last received Chunk has Err set).
	ChatCompletionStream(ctx context.Context, apiKey string, req json.RawMessage) (<-chan Chunk, error)
}

// Chunk is one piece of an adapter's raw SSE output stream. Framing
// ("data: ...\n\n") is already applied by the adapter — the chat-completion
// handler writes Bytes directly to the client without re-framing, while the
// responses handler feeds them through the responses transcoder, which
// emits its own frames.
type Chunk struct {
	Bytes []byte
	Err   error
}

// validateAPIKey rejects an API key containing bytes that cannot appear in
// an HTTP header field value (control bytes other than tab, and DEL; bytes
// 0x80 and above are accepted), per spec.md §4.B: "Unauthorized when API key contains bytes invalid for
// an HTTP header."
func validateAPIKey(apiKey string) error {
	for i := 0; i < len(apiKey); i++ {
		b := apiKey[i]
		if b < 0x20 && b != '\t' || b == 0x7f {
			return gatewayerr.Unauthorizedf("API key contains bytes invalid for an HTTP header")
		}
	}
	return nil
}

// Usage mirrors the canonical usage object from spec.md §3.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
