package llm

import (
	"fmt"
	"strings"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderQwen      = "qwen"
	ProviderMoonshot  = "moonshot"
	ProviderZhipu     = "zhipu"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// DefaultBaseURLs are the provider endpoints used when config names none.
var DefaultBaseURLs = map[string]string{
	ProviderOpenAI:    "https://api.openai.com/v1",
	ProviderDeepSeek:  "https://api.deepseek.com/v1",
	ProviderQwen:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderMoonshot:  "https://api.moonshot.cn/v1",
	ProviderZhipu:     "https://open.bigmodel.cn/api/paas/v4",
	ProviderAnthropic: "https://api.anthropic.com",
	ProviderGemini:    "https://generativelanguage.googleapis.com",
}

// Model is a resolved model identifier with its provider and limits.
type Model struct {
	ID              string
	Provider        string
	ContextWindow   int
	MaxOutputTokens int
	// Reasoning models take max_completion_tokens instead of max_tokens.
	Reasoning bool
}

// MaxInputTokens is the prompt budget: the context window less the output
// reservation.
func (m Model) MaxInputTokens() int {
	return m.ContextWindow - m.MaxOutputTokens
}

var aliases = map[string]string{
	"gpt4":     "gpt-4o",
	"gpt-4":    "gpt-4o",
	"claude":   "claude-sonnet-4-5",
	"gemini":   "gemini-2.5-flash",
	"deepseek": "deepseek-chat",
	"qwen":     "qwen-plus",
	"kimi":     "moonshot-v1-128k",
	"glm":      "glm-4-plus",
}

// ResolveModel maps a model identifier or alias to a Model by name prefix.
func ResolveModel(id string) (Model, error) {
	id = strings.TrimSpace(id)
	if target, ok := aliases[strings.ToLower(id)]; ok {
		id = target
	}
	lower := strings.ToLower(id)

	m := Model{ID: id}
	switch {
	case hasAnyPrefix(lower, "o1", "o3", "o4"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens, m.Reasoning = ProviderOpenAI, 200000, 32768, true
	case strings.HasPrefix(lower, "gpt-"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderOpenAI, 128000, 16384
	case lower == "deepseek-reasoner":
		m.Provider, m.ContextWindow, m.MaxOutputTokens, m.Reasoning = ProviderDeepSeek, 64000, 32768, true
	case strings.HasPrefix(lower, "deepseek"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderDeepSeek, 64000, 8192
	case hasAnyPrefix(lower, "qwen", "qwq"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderQwen, 131072, 8192
	case strings.HasSuffix(lower, "-8k") && hasAnyPrefix(lower, "moonshot", "kimi"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderMoonshot, 8192, 2048
	case strings.HasSuffix(lower, "-32k") && hasAnyPrefix(lower, "moonshot", "kimi"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderMoonshot, 32768, 4096
	case hasAnyPrefix(lower, "moonshot", "kimi"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderMoonshot, 131072, 8192
	case strings.HasPrefix(lower, "glm"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderZhipu, 128000, 4095
	case strings.HasPrefix(lower, "claude"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderAnthropic, 200000, 8192
	case strings.HasPrefix(lower, "gemini"):
		m.Provider, m.ContextWindow, m.MaxOutputTokens = ProviderGemini, 1048576, 8192
	default:
		return Model{}, fmt.Errorf("llm: unsupported model %q", id)
	}
	return m, nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
