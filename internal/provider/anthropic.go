package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/howard-nolan/llmrouter/internal/gatewayerr"
	"github.com/howard-nolan/llmrouter/internal/retry"
	"github.com/howard-nolan/llmrouter/internal/sse"
)

// anthropicVersion is the API version header Anthropic requires on every
// request.
const anthropicVersion = "2023-06-01"

// defaultMaxTokens is applied when the client supplies neither
// "max_tokens" nor "max_completion_tokens" (original_source/gateway/src/sdk/anthropic.rs:
// to_anthropic_request defaults to 1024).
const defaultMaxTokens = 1024

// AnthropicAdapter translates between the canonical OpenAI-shaped chat
// completion request/response and Anthropic's native Messages API, in
// both directions, for both buffered and streaming calls. Grounded on
// _examples/Howard-nolan-llmrouter/internal/provider/anthropic.go and
// original_source/gateway/src/sdk/anthropic.rs.
type AnthropicAdapter struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
	onRetry func()
}

// NewAnthropicAdapter builds the Anthropic adapter.
func NewAnthropicAdapter(baseURL string, client *http.Client, policy retry.Policy, onRetry func()) *AnthropicAdapter {
	return &AnthropicAdapter{baseURL: baseURL, client: client, policy: policy, onRetry: onRetry}
}

func (a *AnthropicAdapter) Name() ID { return Anthropic }

// anthropicMessage is one entry in Anthropic's "messages" array. Content
// is always emitted as a single text content block, per spec.md §8's
// round-trip invariant: {role:"user", content:[{type:"text", text:"hi"}]}.
type anthropicMessage struct {
	Role    string               `json:"role"`
	Content []anthropicTextBlock `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toAnthropicRequest translates a canonical OpenAI-shaped chat completion
// request into Anthropic's Messages API shape: system messages are
// extracted and joined into a top-level "system" field, only user/
// assistant roles survive into "messages", and max_tokens defaults to
// 1024 when absent (original_source/gateway/src/sdk/anthropic.rs:
// to_anthropic_request).
func toAnthropicRequest(req json.RawMessage) (map[string]any, error) {
	var decoded struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
		MaxTokens           *int     `json:"max_tokens"`
		MaxCompletionTokens *int     `json:"max_completion_tokens"`
		Temperature         *float64 `json:"temperature"`
		TopP                *float64 `json:"top_p"`
	}
	if err := json.Unmarshal(req, &decoded); err != nil {
		return nil, gatewayerr.BadRequestf(fmt.Sprintf("anthropic: invalid request body: %v", err))
	}

	var systemParts []string
	var messages []anthropicMessage
	for _, m := range decoded.Messages {
		text := extractText(m.Content)
		switch m.Role {
		case "system", "developer":
			if text != "" {
				systemParts = append(systemParts, text)
			}
		case "user", "assistant":
			if text == "" {
				continue
			}
			messages = append(messages, anthropicMessage{
				Role:    m.Role,
				Content: []anthropicTextBlock{{Type: "text", Text: text}},
			})
		}
	}

	if len(messages) == 0 {
		return nil, gatewayerr.BadRequestf("anthropic: request has no user or assistant messages")
	}

	out := map[string]any{
		"model":    decoded.Model,
		"messages": messages,
	}
	if len(systemParts) > 0 {
		out["system"] = strings.Join(systemParts, "\n\n")
	}

	maxTokens := defaultMaxTokens
	if decoded.MaxTokens != nil {
		maxTokens = *decoded.MaxTokens
	} else if decoded.MaxCompletionTokens != nil {
		maxTokens = *decoded.MaxCompletionTokens
	}
	out["max_tokens"] = maxTokens

	if decoded.Temperature != nil {
		out["temperature"] = *decoded.Temperature
	}
	if decoded.TopP != nil {
		out["top_p"] = *decoded.TopP
	}

	return out, nil
}

// extractText pulls the text out of an OpenAI-shaped message content
// field, which may be a bare string or an array of content parts
// (original_source/gateway/src/sdk/anthropic.rs: extract_text_content).
func extractText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			switch part := item.(type) {
			case string:
				parts = append(parts, part)
			case map[string]any:
				if text, ok := part["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// mapStopReason converts an Anthropic stop_reason into the OpenAI
// finish_reason vocabulary (original_source/gateway/src/sdk/anthropic.rs:
// map_stop_reason).
func mapStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}

func (a *AnthropicAdapter) doRequest(ctx context.Context, apiKey string, body []byte) (*http.Response, error) {
	if err := validateAPIKey(apiKey); err != nil {
		return nil, err
	}

	resp, err := retry.Send(func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		return req, nil
	}, a.client, a.policy, nil, a.onRetry)

	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("anthropic: %v", err))
	}
	return resp, nil
}

// FetchModels proxies GET /v1/models and translates Anthropic's model
// list into the canonical OpenAI {object:"list", data:[...]} shape
// (original_source/gateway/src/sdk/anthropic.rs: to_openai_model_list).
func (a *AnthropicAdapter) FetchModels(ctx context.Context, apiKey string) (json.RawMessage, error) {
	if err := validateAPIKey(apiKey); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("anthropic: %v", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("anthropic: reading model list: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayerr.Upstreamf(resp.StatusCode, string(data))
	}

	var list struct {
		Data []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, gatewayerr.Internalf("anthropic: non-JSON model list response")
	}

	out := make([]map[string]any, 0, len(list.Data))
	for _, m := range list.Data {
		var created int64
		if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
			created = t.Unix()
		}
		out = append(out, map[string]any{"id": m.ID, "object": "model", "created": created, "owned_by": "anthropic"})
	}
	encoded, err := json.Marshal(map[string]any{"object": "list", "data": out})
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}
	return encoded, nil
}

// anthropicResponse is the subset of Anthropic's Messages API response
// this adapter needs to translate back to the canonical shape.
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (r anthropicResponse) text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "")
}

// ChatCompletion sends a buffered request and translates the response
// into a canonical chat-completion object.
func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, apiKey string, req json.RawMessage) (json.RawMessage, error) {
	translated, err := toAnthropicRequest(req)
	if err != nil {
		return nil, err
	}
	translated["stream"] = false

	body, err := json.Marshal(translated)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}

	resp, err := a.doRequest(ctx, apiKey, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerr.Transportf(fmt.Sprintf("anthropic: reading response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayerr.Upstreamf(resp.StatusCode, string(data))
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, gatewayerr.Internalf("anthropic: non-JSON completion response")
	}

	out := map[string]any{
		"id":      decoded.ID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   decoded.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": mapStopReason(decoded.StopReason),
			"message": map[string]any{
				"role":    "assistant",
				"content": decoded.text(),
			},
		}},
		"usage": map[string]any{
			"prompt_tokens":     decoded.Usage.InputTokens,
			"completion_tokens": decoded.Usage.OutputTokens,
			"total_tokens":      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}
	return encoded, nil
}

// anthropicEvent is the subset of fields this adapter reads off
// Anthropic's named SSE events.
type anthropicEvent struct {
	Type string `json:"type"`
	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ChatCompletionStream sends a streaming request and re-emits Anthropic's
// named SSE events as canonical OpenAI-shaped chat-completion-chunk SSE
// frames, tracking id/model/finish_reason across the named-event sequence
// (original_source/gateway/src/sdk/anthropic.rs's try_stream! state
// machine; _examples/Howard-nolan-llmrouter/internal/provider/anthropic.go's
// bufio.Scanner-based equivalent, generalized onto internal/sse.LineReader
// since this adapter reads raw chunks off a live response body rather
// than a pre-scanned buffer).
func (a *AnthropicAdapter) ChatCompletionStream(ctx context.Context, apiKey string, req json.RawMessage) (<-chan Chunk, error) {
	translated, err := toAnthropicRequest(req)
	if err != nil {
		return nil, err
	}
	translated["stream"] = true

	body, err := json.Marshal(translated)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}

	resp, err := a.doRequest(ctx, apiKey, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, gatewayerr.Upstreamf(resp.StatusCode, string(data))
	}

	requestModel, _ := translated["model"].(string)

	out := make(chan Chunk)
	go a.stream(ctx, resp.Body, out, requestModel)
	return out, nil
}

func (a *AnthropicAdapter) stream(ctx context.Context, body io.ReadCloser, out chan<- Chunk, requestModel string) {
	defer close(out)
	defer body.Close()

	var (
		id           = "chatcmpl-anthropic"
		model        = requestModel
		currentEvent string
		sentRole     bool
		sentDone     bool
		reader       sse.LineReader
	)
	created := time.Now().Unix()

	send := func(b []byte) bool {
		select {
		case out <- Chunk{Bytes: b}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	chunkFrame := func(delta map[string]any, finishReason *string) []byte {
		payload := map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			}},
		}
		encoded, _ := json.Marshal(payload)
		return []byte("data: " + string(encoded) + "\n\n")
	}

	emitDone := func(stopReason string) {
		if sentDone {
			return
		}
		sentDone = true
		reason := mapStopReason(stopReason)
		if !send(chunkFrame(map[string]any{}, &reason)) {
			return
		}
		send([]byte("data: [DONE]\n\n"))
	}

	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, line := range reader.Feed(buf[:n]) {
				switch {
				case strings.HasPrefix(line, "event:"):
					currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				case strings.HasPrefix(line, "data:"):
					data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if data == "" {
						continue
					}
					var event anthropicEvent
					if json.Unmarshal([]byte(data), &event) != nil {
						continue
					}
					switch currentEvent {
					case "message_start":
						id = event.Message.ID
						model = event.Message.Model
					case "content_block_delta":
						if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
							if !sentRole {
								sentRole = true
								if !send(chunkFrame(map[string]any{"role": "assistant"}, nil)) {
									return
								}
							}
							if !send(chunkFrame(map[string]any{"content": event.Delta.Text}, nil)) {
								return
							}
						}
					case "message_delta":
						if event.Delta.StopReason != "" {
							emitDone(event.Delta.StopReason)
						}
					case "message_stop":
						emitDone("")
					}
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				select {
				case out <- Chunk{Err: gatewayerr.Transportf(fmt.Sprintf("anthropic: %v", readErr))}:
				case <-ctx.Done():
				}
				return
			}
			emitDone("")
			return
		}
	}
}
