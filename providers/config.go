package providers

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/types"
)

// defaultBaseURLs holds the production endpoint for each OpenAI-compatible
// backend, narrowed from the teacher's providers/config.go per-provider
// constant blocks down to the four providers this module's openaicompat
// adapter actually serves.
var defaultBaseURLs = map[types.Provider]string{
	types.ProviderChatGPT:  "https://api.openai.com",
	types.ProviderGrok:     "https://api.x.ai",
	types.ProviderDeepSeek: "https://api.deepseek.com",
	types.ProviderLlama:    "https://api.llama-api.com",
}

var defaultModels = map[types.Provider]string{
	types.ProviderChatGPT:  "gpt-4o",
	types.ProviderGrok:     "grok-2-latest",
	types.ProviderDeepSeek: "deepseek-chat",
	types.ProviderLlama:    "llama-3.3-70b",
}

// maxOutputTokensFor returns the provider's output ceiling: DeepSeek
// supports an 8k output window, the rest of the OpenAI-compatible family
// is capped at 4k (spec §4.2).
func maxOutputTokensFor(p types.Provider) int {
	if p == types.ProviderDeepSeek {
		return 8192
	}
	return 4096
}

// NewOpenAICompatFor constructs the shared adapter for one of the four
// OpenAI-compatible providers (chatgpt, grok, deepseek, llama), applying
// that provider's default base URL, default model and output ceiling.
func NewOpenAICompatFor(p types.Provider, apiKey string, logger *zap.Logger) *OpenAICompatProvider {
	return NewOpenAICompat(OpenAICompatConfig{
		Provider:        p,
		APIKey:          apiKey,
		BaseURL:         defaultBaseURLs[p],
		DefaultModel:    defaultModels[p],
		MaxOutputTokens: maxOutputTokensFor(p),
	}, logger)
}
