package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/gatewayerr"
	"github.com/howard-nolan/llmrouter/internal/retry"
)

// OpenAICompatible is the adapter for every provider whose chat-completion,
// model-list, and streaming wire shapes already match the OpenAI API —
// which is all of them except Anthropic. One instance, parameterized by
// base URL and a few hooks, covers openai, gemini, openrouter, vercel,
// groq, deepseek, xai, mistral, cohere, azure, bedrock, and vertex
// (original_source/gateway/src/sdk/gemini.rs shows the same "identical
// body, Bearer header, different base URL" shape used for Gemini's
// compatibility endpoint in the source this was distilled from).
type OpenAICompatible struct {
	id      ID
	baseURL string
	client  *http.Client
	policy  retry.Policy
	onRetry func()

	// prepareRequest, if non-nil, is given the decoded JSON request body
	// before it's re-marshaled and sent, so a provider can force fields
	// (Kimi overwrites "model"; see kimi.go).
	prepareRequest func(body map[string]any)

	// userAgent, if set, overrides the default transport User-Agent
	// (Kimi's coding endpoint requires a specific one; see kimi.go).
	userAgent string
}

// NewOpenAICompatible constructs the adapter for a single provider.
func NewOpenAICompatible(id ID, baseURL string, client *http.Client, policy retry.Policy, onRetry func()) *OpenAICompatible {
	return &OpenAICompatible{id: id, baseURL: baseURL, client: client, policy: policy, onRetry: onRetry}
}

func (a *OpenAICompatible) Name() ID { return a.id }

func (a *OpenAICompatible) doRequest(ctx context.Context, method, path, apiKey string, body []byte) (*http.Response, error) {
	if apiKey != "" {
		if err := validateAPIKey(apiKey); err != nil {
			return nil, err
		}
	}

	resp, err := retry.Send(func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytesReader(body))
		if err != nil {
			return nil, err
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if a.userAgent != "" {
			req.Header.Set("User-Agent", a.userAgent)
		}
		return req, nil
	}, a.client, a.policy, nil, a.onRetry)

	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("%s: %v", a.id, err))
	}
	return resp, nil
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

// FetchModels proxies GET /models, forwarding the upstream's model list
// verbatim — every OpenAI-compatible upstream already returns the
// canonical {object:"list", data:[...]} shape (spec.md's Open Question on
// Gemini's list is resolved this way: its compatibility endpoint needs no
// translation, so one FetchModels contract serves all twelve of these
// providers uniformly).
func (a *OpenAICompatible) FetchModels(ctx context.Context, apiKey string) (json.RawMessage, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, "/models", apiKey, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("%s: reading model list: %v", a.id, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayerr.Upstreamf(resp.StatusCode, string(data))
	}
	if !json.Valid(data) {
		return nil, gatewayerr.Internalf(fmt.Sprintf("%s: non-JSON model list response", a.id))
	}
	return data, nil
}

// ChatCompletion sends a buffered chat-completion request and returns the
// upstream's JSON body unmodified.
func (a *OpenAICompatible) ChatCompletion(ctx context.Context, apiKey string, req json.RawMessage) (json.RawMessage, error) {
	body, err := a.prepare(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := a.doRequest(ctx, http.MethodPost, "/chat/completions", apiKey, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("%s: reading response: %v", a.id, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayerr.Upstreamf(resp.StatusCode, string(data))
	}
	if !json.Valid(data) {
		return nil, gatewayerr.Internalf(fmt.Sprintf("%s: non-JSON completion response", a.id))
	}
	return data, nil
}

// ChatCompletionStream sends a streaming chat-completion request and
// relays the upstream's SSE frames unmodified — they're already in
// canonical chunk form, byte for byte.
func (a *OpenAICompatible) ChatCompletionStream(ctx context.Context, apiKey string, req json.RawMessage) (<-chan Chunk, error) {
	body, err := a.prepare(req, true)
	if err != nil {
		return nil, err
	}

	resp, err := a.doRequest(ctx, http.MethodPost, "/chat/completions", apiKey, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, gatewayerr.Upstreamf(resp.StatusCode, string(data))
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- Chunk{Bytes: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case out <- Chunk{Err: gatewayerr.Transportf(fmt.Sprintf("%s: %v", a.id, err))}:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()
	return out, nil
}

// prepare decodes the canonical request, applies any provider-specific
// field overrides, forces "stream" to match the call shape, and
// re-encodes.
func (a *OpenAICompatible) prepare(req json.RawMessage, stream bool) ([]byte, error) {
	var body map[string]any
	if err := json.Unmarshal(req, &body); err != nil {
		return nil, gatewayerr.BadRequestf(fmt.Sprintf("%s: invalid request body: %v", a.id, err))
	}
	if a.prepareRequest != nil {
		a.prepareRequest(body)
	}
	body["stream"] = stream

	out, err := json.Marshal(body)
	if err != nil {
		return nil, gatewayerr.Internalf(fmt.Sprintf("%s: re-encoding request: %v", a.id, err))
	}
	return out, nil
}
