package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/howard-nolan/llmrouter/internal/gatewayerr"
	"github.com/howard-nolan/llmrouter/internal/provider"
	"github.com/howard-nolan/llmrouter/internal/responses"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": "gateway", "status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProviders lists every provider registered in the registry, in
// enumeration order; cmd/gateway registers all fourteen
// (SPEC_FULL.md "PROVIDER SURFACE").
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	data := make([]map[string]any, 0, len(s.registry.All()))
	for _, a := range s.registry.All() {
		id := a.Name().String()
		data = append(data, map[string]any{
			"id":                id,
			"object":            "provider",
			"model_prefix":      id + "/",
			"openai_compatible": a.Name() != provider.Anthropic,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

// handleModels serves GET /v1/models?provider=<pid>. With no provider
// query, it aggregates every registered adapter's model list, per
// spec.md §7's propagation policy: suppress individual failures if at
// least one provider succeeded, union the data; otherwise return the
// first recorded error.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearer(r)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}
	if err := validateGatewayKey(token, s.cfg.GatewayAPIKeys); err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	if pid := r.URL.Query().Get("provider"); pid != "" {
		id, ok := provider.Parse(pid)
		if !ok {
			gatewayerr.WriteJSON(w, gatewayerr.BadRequestf(fmt.Sprintf("unknown provider %q", pid)))
			return
		}
		adapter, err := s.registry.Provider(id)
		if err != nil {
			gatewayerr.WriteJSON(w, gatewayerr.BadRequestf(err.Error()))
			return
		}
		data, err := adapter.FetchModels(r.Context(), s.apiKeyFor(id, token))
		if err != nil {
			gatewayerr.WriteJSON(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	var union []json.RawMessage
	var firstErr error
	for _, adapter := range s.registry.All() {
		data, err := adapter.FetchModels(r.Context(), s.apiKeyFor(adapter.Name(), token))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		var list struct {
			Data []json.RawMessage `json:"data"`
		}
		if json.Unmarshal(data, &list) == nil {
			union = append(union, list.Data...)
		}
	}

	if len(union) == 0 {
		if firstErr != nil {
			gatewayerr.WriteJSON(w, firstErr)
			return
		}
		gatewayerr.WriteJSON(w, gatewayerr.BadRequestf("no models available from any configured provider"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": union})
}

// apiKeyFor returns the configured key for id if present, else the
// client's bearer token (spec.md §4.E credential resolution: "select the
// per-provider configured key if present, else forward the client token").
func (s *Server) apiKeyFor(id provider.ID, clientToken string) string {
	if key := s.cfg.Providers[id.String()].APIKey; key != "" {
		return key
	}
	return clientToken
}

// handleChatCompletions implements POST /v1/chat/completions (spec.md §4.E).
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	var decoded struct {
		Model    string `json:"model"`
		Messages []any  `json:"messages"`
		Stream   bool   `json:"stream"`
	}
	if json.Unmarshal(body, &decoded) != nil || decoded.Model == "" || decoded.Messages == nil {
		gatewayerr.WriteJSON(w, gatewayerr.BadRequestf("request requires \"model\" and \"messages\""))
		return
	}

	id, upstreamModel := provider.ResolveModel(decoded.Model)
	adapter, err := s.registry.Provider(id)
	if err != nil {
		gatewayerr.WriteJSON(w, gatewayerr.BadRequestf(err.Error()))
		return
	}

	body, err = setModel(body, upstreamModel)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	apiKey, err := resolveProviderAPIKey(r, s.cfg.GatewayAPIKeys, s.cfg.Providers[id.String()].APIKey)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	w.Header().Set("X-LLMRouter-Provider", id.String())
	w.Header().Set("X-LLMRouter-Model", upstreamModel)

	if decoded.Stream {
		s.streamChatCompletion(w, r, adapter, apiKey, body)
		return
	}

	resp, err := adapter.ChatCompletion(r.Context(), apiKey, body)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, adapter provider.Adapter, apiKey string, body []byte) {
	chunks, err := adapter.ChatCompletionStream(r.Context(), apiKey, body)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		gatewayerr.WriteJSON(w, gatewayerr.Internalf("streaming unsupported by response writer"))
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			return
		}
		if _, err := w.Write(chunk.Bytes); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleResponses implements POST /v1/responses (spec.md §4.F).
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	chatReq, err := responses.BuildChatRequest(body)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	var decoded struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	json.Unmarshal(chatReq, &decoded)

	id, upstreamModel := provider.ResolveModel(decoded.Model)
	adapter, err := s.registry.Provider(id)
	if err != nil {
		gatewayerr.WriteJSON(w, gatewayerr.BadRequestf(err.Error()))
		return
	}

	chatReq, err = setModel(chatReq, upstreamModel)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	apiKey, err := resolveProviderAPIKey(r, s.cfg.GatewayAPIKeys, s.cfg.Providers[id.String()].APIKey)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	if decoded.Stream {
		s.streamResponses(w, r, adapter, apiKey, chatReq)
		return
	}

	resp, err := adapter.ChatCompletion(r.Context(), apiKey, chatReq)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	out, err := responses.FromChatCompletion(resp, time.Now().Unix())
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) streamResponses(w http.ResponseWriter, r *http.Request, adapter provider.Adapter, apiKey string, chatReq []byte) {
	chunks, err := adapter.ChatCompletionStream(r.Context(), apiKey, chatReq)
	if err != nil {
		gatewayerr.WriteJSON(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		gatewayerr.WriteJSON(w, gatewayerr.Internalf("streaming unsupported by response writer"))
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	transcoder := responses.NewStreamFromChatStream(time.Now().Unix())
	for chunk := range chunks {
		if chunk.Err != nil {
			break
		}
		for _, frame := range transcoder.Feed(chunk.Bytes) {
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
	for _, frame := range transcoder.Close() {
		if _, err := w.Write(frame); err != nil {
			return
		}
		flusher.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, gatewayerr.BadRequestf("failed to read request body")
	}
	if !json.Valid(body) {
		return nil, gatewayerr.BadRequestf("request body is not valid JSON")
	}
	return body, nil
}

func setModel(body []byte, model string) ([]byte, error) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, gatewayerr.BadRequestf("invalid request body")
	}
	decoded["model"] = model
	out, err := json.Marshal(decoded)
	if err != nil {
		return nil, gatewayerr.Internalf(err.Error())
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
