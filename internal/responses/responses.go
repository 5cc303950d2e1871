// Package responses implements the gateway's higher-level "responses" API
// surface: building a canonical chat-completion request out of a
// responses-shaped one, and transcoding chat-completion replies (buffered
// and streamed) into response objects/events. Grounded on
// original_source/gateway/src/http/responses.rs, which this package
// follows operation-for-operation (build_chat_request,
// response_from_chat_completion, stream_responses_from_chat_stream).
package responses

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/gatewayerr"
	"github.com/howard-nolan/llmrouter/internal/sse"
)

// BuildChatRequest translates a responses-API request body into a
// canonical chat-completion request (original_source/gateway/src/http/responses.rs:
// build_chat_request).
func BuildChatRequest(body json.RawMessage) (json.RawMessage, error) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, gatewayerr.BadRequestf(fmt.Sprintf("responses: invalid request body: %v", err))
	}

	model, _ := decoded["model"].(string)
	if model == "" {
		return nil, gatewayerr.BadRequestf("responses: request is missing \"model\"")
	}

	var messages []map[string]any
	if raw, ok := decoded["messages"]; ok {
		if arr, ok := raw.([]any); ok {
			for _, m := range arr {
				if mm, ok := m.(map[string]any); ok {
					messages = append(messages, mm)
				}
			}
		}
	} else if input, ok := decoded["input"]; ok {
		var err error
		messages, err = messagesFromInput(input)
		if err != nil {
			return nil, err
		}
	}

	if len(messages) == 0 {
		return nil, gatewayerr.BadRequestf("responses: no messages could be built from the request")
	}

	out := map[string]any{
		"model":    model,
		"messages": messages,
	}
	for _, field := range []string{"temperature", "top_p", "max_tokens", "max_completion_tokens"} {
		if v, ok := decoded[field]; ok {
			out[field] = v
		}
	}
	if v, ok := decoded["max_output_tokens"]; ok {
		out["max_tokens"] = v
	}
	if v, ok := decoded["stream"]; ok {
		out["stream"] = v
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}
	return encoded, nil
}

// messagesFromInput implements the "input" branch of build_chat_request:
// a bare string becomes a single user message; an array is walked
// per-entry, using either a string "role" plus extracted text content or
// a bare "text" field treated as a user message.
func messagesFromInput(input any) ([]map[string]any, error) {
	switch v := input.(type) {
	case string:
		return []map[string]any{{"role": "user", "content": v}}, nil
	case []any:
		var out []map[string]any
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if role, ok := entry["role"].(string); ok {
				text := extractText(entry["content"])
				if text == "" {
					continue
				}
				out = append(out, map[string]any{"role": role, "content": text})
				continue
			}
			if text, ok := entry["text"].(string); ok && text != "" {
				out = append(out, map[string]any{"role": "user", "content": text})
			}
		}
		if len(out) == 0 {
			return nil, gatewayerr.BadRequestf("responses: \"input\" produced no messages")
		}
		return out, nil
	default:
		return nil, gatewayerr.BadRequestf("responses: \"input\" must be a string or array")
	}
}

// extractText mirrors the text-extraction rule from the chat-completion
// Anthropic adapter (spec.md §4.B), reused here for responses "input"
// entries and for reading choices[0].message.content below. It also
// recognizes the responses-specific "output_text" content-part type
// (original_source/gateway/src/http/responses.rs: extract_text).
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
				if t, ok := part["type"].(string); ok && (t == "text" || t == "output_text") {
					if text, ok := part["text"].(string); ok {
						parts = append(parts, text)
						continue
					}
				}
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

// chatCompletion is the subset of a canonical chat-completion response
// this package reads.
type chatCompletion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
}

// FromChatCompletion builds a buffered response object from a canonical
// chat-completion reply (original_source/gateway/src/http/responses.rs:
// response_from_chat_completion). nowUnix supplies the current time,
// since this package never calls time.Now itself — the caller stamps it.
func FromChatCompletion(body json.RawMessage, nowUnix int64) (json.RawMessage, error) {
	var chat chatCompletion
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, gatewayerr.Internalf("responses: upstream completion was not valid JSON")
	}

	var text string
	if len(chat.Choices) > 0 {
		text = extractText(chat.Choices[0].Message.Content)
	}

	createdAt := chat.Created
	if createdAt == 0 {
		createdAt = nowUnix
	}

	out := map[string]any{
		"id":         "resp_" + chat.ID,
		"object":     "response",
		"created_at": createdAt,
		"status":     "completed",
		"model":      chat.Model,
		"output": []map[string]any{{
			"id":   "msg_" + chat.ID,
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{{
				"type":        "output_text",
				"text":        text,
				"annotations": []any{},
			}},
		}},
		"output_text": text,
	}
	if len(chat.Usage) > 0 {
		out["usage"] = chat.Usage
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}
	return encoded, nil
}

// chunk is the subset of a chat-completion-chunk SSE payload this
// transcoder reads.
type chunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamFromChatStream transcodes a channel of raw chat-completion-chunk
// SSE bytes into response-event SSE bytes, implementing the state
// machine from original_source/gateway/src/http/responses.rs:
// stream_responses_from_chat_stream. nowUnix is read once, at
// construction, to seed "created" if no chunk ever supplies one.
type StreamFromChatStream struct {
	nowUnix int64

	responseID      string
	model           string
	created         int64
	emittedCreated  bool
	emittedComplete bool
	fullText        strings.Builder

	reader sse.LineReader
}

// NewStreamFromChatStream builds a transcoder. nowUnix is the current
// unix time, supplied by the caller since this package never reads the
// clock itself.
func NewStreamFromChatStream(nowUnix int64) *StreamFromChatStream {
	return &StreamFromChatStream{nowUnix: nowUnix, responseID: "resp_gateway", created: nowUnix}
}

// Feed consumes one raw byte chunk from the upstream chat-completion
// stream and returns zero or more fully framed response-event SSE
// frames ("data: ...\n\n").
func (s *StreamFromChatStream) Feed(raw []byte) [][]byte {
	var frames [][]byte
	for _, line := range s.reader.Feed(raw) {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			frames = append(frames, s.complete()...)
			continue
		}

		var c chunk
		if json.Unmarshal([]byte(data), &c) != nil {
			continue
		}
		if c.ID != "" {
			s.responseID = "resp_" + c.ID
		}
		if c.Model != "" {
			s.model = c.Model
		}
		if c.Created != 0 {
			s.created = c.Created
		}

		if len(c.Choices) == 0 {
			continue
		}
		choice := c.Choices[0]

		if choice.Delta.Content != "" {
			frames = append(frames, s.ensureCreated()...)
			s.fullText.WriteString(choice.Delta.Content)
			frames = append(frames, s.frame("response.output_text.delta", map[string]any{
				"delta": choice.Delta.Content,
			}))
		}

		if choice.FinishReason != nil {
			frames = append(frames, s.complete()...)
		}
	}
	return frames
}

// Close signals upstream EOF, returning any frames still owed — the
// created/completed pair if the stream ended without ever hitting
// finish_reason or a literal [DONE].
func (s *StreamFromChatStream) Close() [][]byte {
	if s.emittedComplete {
		return nil
	}
	return s.complete()
}

func (s *StreamFromChatStream) ensureCreated() [][]byte {
	if s.emittedCreated {
		return nil
	}
	s.emittedCreated = true
	return [][]byte{s.frame("response.created", map[string]any{"status": "in_progress"})}
}

func (s *StreamFromChatStream) complete() [][]byte {
	if s.emittedComplete {
		return nil
	}
	var frames [][]byte
	frames = append(frames, s.ensureCreated()...)
	s.emittedComplete = true
	frames = append(frames, s.frame("response.completed", map[string]any{
		"status":      "completed",
		"output_text": s.fullText.String(),
	}))
	frames = append(frames, []byte("data: [DONE]\n\n"))
	return frames
}

func (s *StreamFromChatStream) frame(eventType string, extra map[string]any) []byte {
	payload := map[string]any{
		"type":        eventType,
		"response_id": s.responseID,
		"model":       s.model,
		"created_at":  s.created,
	}
	for k, v := range extra {
		payload[k] = v
	}
	encoded, _ := json.Marshal(payload)
	return []byte("data: " + string(encoded) + "\n\n")
}
