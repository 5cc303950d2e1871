// Package config loads the gateway's process environment into a typed
// Config, following the teacher's env-merge pattern
// (_examples/Howard-nolan-llmrouter/internal/config/config.go): a .env
// file loaded first via godotenv, then koanf layered over the real
// process environment, then unmarshaled into a struct. Unlike the
// teacher, there is no YAML models file — the provider set is a closed
// enumeration (spec.md §3), not user-configured, so config load is
// env-only.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ProviderConfig holds one provider's resolved base URL and API key.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// Config is the gateway's fully resolved runtime configuration
// (spec.md §6's configuration table).
type Config struct {
	Host string
	Port string

	GatewayAPIKeys []string

	Providers map[string]ProviderConfig

	UpstreamMaxRetries     uint
	UpstreamRetryBaseDelay time.Duration
	RequestTimeout         time.Duration
}

// providerEnv names the <BASE_URL env, API_KEY env, default base URL>
// triple for every entry in the fourteen-provider enumeration
// (SPEC_FULL.md "PROVIDER SURFACE").
var providerEnv = []struct {
	id         string
	baseURLEnv string
	apiKeyEnv  string
	defaultURL string
}{
	{"openai", "OPENAI_BASE_URL", "OPENAI_API_KEY", "https://api.openai.com"},
	{"anthropic", "ANTHROPIC_BASE_URL", "ANTHROPIC_API_KEY", "https://api.anthropic.com"},
	{"gemini", "GEMINI_BASE_URL", "GEMINI_API_KEY", "https://generativelanguage.googleapis.com/v1beta/openai"},
	{"kimi", "KIMI_BASE_URL", "KIMI_API_KEY", "https://api.kimi.com/coding/v1"},
	{"openrouter", "OPENROUTER_BASE_URL", "OPENROUTER_API_KEY", "https://openrouter.ai/api/v1"},
	{"vercel", "VERCEL_AI_GATEWAY_BASE_URL", "VERCEL_AI_GATEWAY_API_KEY", "https://ai-gateway.vercel.sh/v1"},
	{"groq", "GROQ_BASE_URL", "GROQ_API_KEY", "https://api.groq.com/openai/v1"},
	{"deepseek", "DEEPSEEK_BASE_URL", "DEEPSEEK_API_KEY", "https://api.deepseek.com/v1"},
	{"xai", "XAI_BASE_URL", "XAI_API_KEY", "https://api.x.ai/v1"},
	{"mistral", "MISTRAL_BASE_URL", "MISTRAL_API_KEY", "https://api.mistral.ai/v1"},
	{"cohere", "COHERE_BASE_URL", "COHERE_API_KEY", "https://api.cohere.com/compatibility/v1"},
	{"azure", "AZURE_OPENAI_BASE_URL", "AZURE_OPENAI_API_KEY", "https://example-resource.openai.azure.com/openai/v1"},
	{"bedrock", "AWS_BEDROCK_BASE_URL", "AWS_BEDROCK_API_KEY", "https://bedrock-runtime.us-east-1.amazonaws.com/openai/v1"},
	{"vertex", "VERTEX_AI_BASE_URL", "VERTEX_AI_API_KEY", "https://us-central1-aiplatform.googleapis.com/v1/projects/PROJECT/locations/us-central1/endpoints/openapi"},
}

// Load reads a .env file (if present) then the process environment and
// returns the resolved Config. envFile may be empty, in which case
// godotenv's default ".env" in the working directory is loaded (if
// present) before the real process environment is read.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:      getOr(k, "HOST", "0.0.0.0"),
		Port:      getOr(k, "PORT", "3000"),
		Providers: make(map[string]ProviderConfig, len(providerEnv)),
	}

	cfg.GatewayAPIKeys = splitTrim(k.String("GATEWAY_API_KEYS"))

	cfg.UpstreamMaxRetries = uint(intOr(k, "UPSTREAM_MAX_RETRIES", 2))
	cfg.UpstreamRetryBaseDelay = time.Duration(intOr(k, "UPSTREAM_RETRY_BASE_DELAY_MS", 150)) * time.Millisecond
	cfg.RequestTimeout = time.Duration(intOr(k, "REQUEST_TIMEOUT_SECS", 120)) * time.Second

	for _, p := range providerEnv {
		baseURL := strings.TrimRight(getOr(k, p.baseURLEnv, p.defaultURL), "/")
		apiKey := strings.TrimSpace(k.String(p.apiKeyEnv))
		cfg.Providers[p.id] = ProviderConfig{BaseURL: baseURL, APIKey: apiKey}
	}

	return cfg, nil
}

// HasAPIKey reports whether a provider has a configured API key
// ("not configured" otherwise per spec.md §6).
func (c *Config) HasAPIKey(id string) bool {
	return c.Providers[id].APIKey != ""
}

func getOr(k *koanf.Koanf, key, fallback string) string {
	v := strings.TrimSpace(k.String(key))
	if v == "" {
		return fallback
	}
	return v
}

func intOr(k *koanf.Koanf, key string, fallback int) int {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
