package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/retry"
)

// kimiModel is the only model Kimi's coding endpoint serves
// (original_source/gateway/src/sdk/kimi.rs: KIMI_MODEL).
const kimiModel = "kimi-for-coding"

// kimiUserAgent mirrors the original source's KIMI_USER_AGENT — Kimi's
// coding endpoint is picky about client identification.
const kimiUserAgent = "KimiCLI/1.3"

// kimiModelList is the synthetic single-entry model list Kimi reports,
// since its coding endpoint exposes no /models route to proxy
// (original_source/gateway/src/sdk/kimi.rs: fetch_models never calls
// upstream).
var kimiModelList = json.RawMessage(`{"object":"list","data":[{"id":"` + kimiModel + `","object":"model","created":0,"owned_by":"kimi"}]}`)

// KimiAdapter wraps OpenAICompatible to force the model field on every
// request and to skip the (nonexistent) upstream model list.
type KimiAdapter struct {
	*OpenAICompatible
}

// NewKimi builds the Kimi adapter.
func NewKimi(baseURL string, client *http.Client, policy retry.Policy, onRetry func()) Adapter {
	a := NewOpenAICompatible(Kimi, baseURL, client, policy, onRetry)
	a.userAgent = kimiUserAgent
	a.prepareRequest = func(body map[string]any) {
		body["model"] = kimiModel
	}
	return &KimiAdapter{OpenAICompatible: a}
}

// FetchModels returns the synthetic single-entry list instead of proxying
// a nonexistent upstream route.
func (k *KimiAdapter) FetchModels(ctx context.Context, apiKey string) (json.RawMessage, error) {
	return kimiModelList, nil
}
