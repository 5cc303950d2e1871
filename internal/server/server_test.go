package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/provider"
	"github.com/howard-nolan/llmrouter/internal/retry"
)

func testServer(t *testing.T, upstreams map[provider.ID]string) *Server {
	t.Helper()

	cfg := &config.Config{
		Providers: make(map[string]config.ProviderConfig),
	}

	var adapters []provider.Adapter
	for id, baseURL := range upstreams {
		cfg.Providers[id.String()] = config.ProviderConfig{BaseURL: baseURL, APIKey: "configured-key-" + id.String()}
		if id == provider.Anthropic {
			adapters = append(adapters, provider.NewAnthropicAdapter(baseURL, http.DefaultClient, retry.Policy{}, nil))
		} else {
			adapters = append(adapters, provider.NewOpenAICompatible(id, baseURL, http.DefaultClient, retry.Policy{}, nil))
		}
	}

	return New(cfg, provider.NewRegistry(adapters...), nil)
}

func TestHandleRoot(t *testing.T) {
	s := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"gateway","status":"ok"}`, rec.Body.String())
}

func TestHandleHealthAndStatus(t *testing.T) {
	s := testServer(t, nil)
	for _, path := range []string{"/healthz", "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestBareChatCompletion(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":"x","choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer upstream.Close()

	s := testServer(t, map[provider.ID]string{provider.OpenAI: upstream.URL})
	s.cfg.Providers["openai"] = config.ProviderConfig{BaseURL: upstream.URL, APIKey: "sk-test"}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(
		`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer client-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"x","choices":[{"message":{"content":"hello"}}]}`, rec.Body.String())
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestPrefixRoutingToAnthropic(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotAPIKey, gotVersion string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id":"msg_1","model":"claude-3-haiku","content":[{"type":"text","text":"hi back"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer upstream.Close()

	s := testServer(t, map[provider.ID]string{provider.Anthropic: upstream.URL})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(
		`{"model":"anthropic/claude-3-haiku","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer client-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.NotEmpty(t, gotAPIKey)
	assert.Equal(t, "claude-3-haiku", gotBody["model"])
	assert.Equal(t, float64(1024), gotBody["max_tokens"])
}

func TestStreamingChatTranscode(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"id\":\"c1\",\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n"))
		w.Write([]byte("data: {\"id\":\"c1\",\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer upstream.Close()

	s := testServer(t, map[provider.ID]string{provider.OpenAI: upstream.URL})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(
		`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}],"stream":true}`))
	req.Header.Set("Authorization", "Bearer client-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := dataLines(rec.Body.String())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"content":"he"`)
	assert.Contains(t, lines[1], `"content":"llo"`)
	assert.Contains(t, lines[2], "[DONE]")
}

func TestResponsesStreaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"id\":\"c1\",\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n"))
		w.Write([]byte("data: {\"id\":\"c1\",\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer upstream.Close()

	s := testServer(t, map[provider.ID]string{provider.OpenAI: upstream.URL})

	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(
		`{"model":"gpt-4o-mini","input":"hi","stream":true}`))
	req.Header.Set("Authorization", "Bearer client-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	lines := dataLines(rec.Body.String())
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "response.created")
	assert.Contains(t, lines[1], "response.output_text.delta")
	assert.Contains(t, lines[2], "response.output_text.delta")
	assert.Contains(t, lines[3], "response.completed")
	assert.Contains(t, lines[3], `"output_text":"hello"`)
	assert.Contains(t, lines[4], "[DONE]")
}

func TestUpstreamErrorForwardedVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"nope"}`))
	}))
	defer upstream.Close()

	s := testServer(t, map[provider.ID]string{provider.OpenAI: upstream.URL})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(
		`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer client-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())
}

func TestChatCompletionMissingBodyFieldsIsBadRequest(t *testing.T) {
	s := testServer(t, map[provider.ID]string{provider.OpenAI: "http://unused"})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4o-mini"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelsRequiresBearer(t *testing.T) {
	s := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProvidersListsAllRegistered(t *testing.T) {
	s := testServer(t, map[provider.ID]string{provider.OpenAI: "http://unused", provider.Anthropic: "http://unused"})

	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	data := decoded["data"].([]any)
	assert.Len(t, data, 2)
}

func dataLines(body string) []string {
	scanner := bufio.NewScanner(strings.NewReader(body))
	var lines []string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
