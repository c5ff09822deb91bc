package llm

import (
	"context"
	"net/http"

	"github.com/iyou00/chatui/internal/config"
)

// Request is one completion call.
type Request struct {
	Model  Model
	System string
	User   string
}

// Response is a provider's answer with usage metadata.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is one model vendor. Complete returns *ProviderError on failure.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// NewProviders builds a provider for every configured entry that has an API
// key. httpClient may be nil.
func NewProviders(cfg config.LLMConfig, httpClient *http.Client) map[string]Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	out := make(map[string]Provider)
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			continue
		}
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = DefaultBaseURLs[name]
		}
		switch name {
		case ProviderAnthropic:
			out[name] = NewAnthropic(pc.APIKey, baseURL, httpClient)
		case ProviderGemini:
			out[name] = NewGemini(pc.APIKey, baseURL, httpClient)
		case ProviderOpenAI, ProviderDeepSeek, ProviderQwen, ProviderMoonshot, ProviderZhipu:
			out[name] = NewOpenAICompatible(name, pc.APIKey, baseURL, httpClient)
		}
	}
	return out
}
