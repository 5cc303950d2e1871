// Command gateway runs the llmrouter HTTP gateway, fronting the
// fourteen-provider enumeration from SPEC_FULL.md behind a single
// OpenAI-shaped chat-completion and responses API. Bootstrap sequence
// grounded on _examples/Howard-nolan-llmrouter/cmd/llmrouter/main.go: load
// config, build every adapter, assemble the registry, start the server.
package main

import (
	"log"
	"net/http"
	"net/url"

	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/metrics"
	"github.com/howard-nolan/llmrouter/internal/provider"
	"github.com/howard-nolan/llmrouter/internal/retry"
	"github.com/howard-nolan/llmrouter/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	m := metrics.New()

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: m.InstrumentTransport(http.DefaultTransport, hostToProvider(cfg)),
	}
	policy := retry.Policy{MaxRetries: cfg.UpstreamMaxRetries, BaseDelayMS: uint(cfg.UpstreamRetryBaseDelay.Milliseconds())}

	adapters := buildAdapters(cfg, httpClient, policy, m)
	registry := provider.NewRegistry(adapters...)

	srv := server.New(cfg, registry, m)

	addr := cfg.Host + ":" + cfg.Port
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	log.Printf("llmrouter gateway listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildAdapters constructs one adapter per provider in the fourteen-entry
// enumeration (SPEC_FULL.md "PROVIDER SURFACE"), wiring each provider's
// resolved base URL, retry policy, and a metrics-backed retry hook.
func buildAdapters(cfg *config.Config, client *http.Client, policy retry.Policy, m *metrics.Metrics) []provider.Adapter {
	openAICompatible := []provider.ID{
		provider.OpenAI, provider.Gemini, provider.OpenRouter, provider.Vercel,
		provider.Groq, provider.DeepSeek, provider.XAI, provider.Mistral,
		provider.Cohere, provider.Azure, provider.Bedrock, provider.Vertex,
	}

	var adapters []provider.Adapter
	for _, id := range openAICompatible {
		pc := cfg.Providers[id.String()]
		adapters = append(adapters, provider.NewOpenAICompatible(id, pc.BaseURL, client, policy, m.OnRetry(id.String())))
	}

	kimiCfg := cfg.Providers[provider.Kimi.String()]
	adapters = append(adapters, provider.NewKimi(kimiCfg.BaseURL, client, policy, m.OnRetry(provider.Kimi.String())))

	anthropicCfg := cfg.Providers[provider.Anthropic.String()]
	adapters = append(adapters, provider.NewAnthropicAdapter(anthropicCfg.BaseURL, client, policy, m.OnRetry(provider.Anthropic.String())))

	return adapters
}

// hostToProvider builds the reverse lookup from upstream host to provider
// id that metrics.InstrumentTransport uses to label each round trip, from
// every configured provider's base URL.
func hostToProvider(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Providers))
	for id, pc := range cfg.Providers {
		u, err := url.Parse(pc.BaseURL)
		if err != nil || u.Host == "" {
			continue
		}
		out[u.Host] = id
	}
	return out
}
