package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveModelPrefixRouting(t *testing.T) {
	id, model := ResolveModel("anthropic/claude-3-haiku")
	assert.Equal(t, Anthropic, id)
	assert.Equal(t, "claude-3-haiku", model)
}

func TestResolveModelHeuristics(t *testing.T) {
	cases := []struct {
		model    string
		wantID   ID
		wantName string
	}{
		{"claude-3-opus", Anthropic, "claude-3-opus"},
		{"GEMINI-1.5", Gemini, "GEMINI-1.5"},
		{"kimi-for-coding", Kimi, "kimi-for-coding"},
		{"deepseek-chat", DeepSeek, "deepseek-chat"},
		{"grok-2", XAI, "grok-2"},
		{"mistral-large", Mistral, "mistral-large"},
		{"ministral-8b", Mistral, "ministral-8b"},
		{"codestral-latest", Mistral, "codestral-latest"},
		{"command-r-plus", Cohere, "command-r-plus"},
	}
	for _, tc := range cases {
		id, model := ResolveModel(tc.model)
		assert.Equal(t, tc.wantID, id, tc.model)
		assert.Equal(t, tc.wantName, model, tc.model)
	}
}

func TestResolveModelDefaultFallback(t *testing.T) {
	id, model := ResolveModel("gpt-4o-mini")
	assert.Equal(t, OpenAI, id)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestParseAcceptsAliasesCaseInsensitively(t *testing.T) {
	id, ok := Parse("AZURE-OPENAI")
	assert.True(t, ok)
	assert.Equal(t, Azure, id)

	id, ok = Parse("Anthropic")
	assert.True(t, ok)
	assert.Equal(t, Anthropic, id)

	_, ok = Parse("not-a-provider")
	assert.False(t, ok)
}

func TestAllFourteenProvidersHaveStableStringAndOrder(t *testing.T) {
	assert.Len(t, allIDs, 14)
	seen := make(map[string]bool)
	for _, id := range allIDs {
		name := id.String()
		assert.NotEqual(t, "unknown", name)
		assert.False(t, seen[name], "duplicate provider name %s", name)
		seen[name] = true
	}
}
