package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatible serves every provider speaking the OpenAI chat
// completions API: OpenAI itself, DeepSeek, DashScope compatible mode,
// Moonshot, and Zhipu.
type OpenAICompatible struct {
	name   string
	client *openai.Client
}

// NewOpenAICompatible creates a provider for name at baseURL.
func NewOpenAICompatible(name, apiKey, baseURL string, httpClient *http.Client) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAICompatible{name: name, client: openai.NewClientWithConfig(cfg)}
}

// Complete implements Provider.
func (p *OpenAICompatible) Complete(ctx context.Context, req Request) (Response, error) {
	creq := openai.ChatCompletionRequest{
		Model: req.Model.ID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.Model.Reasoning {
		creq.MaxCompletionTokens = req.Model.MaxOutputTokens
	} else {
		creq.MaxTokens = req.Model.MaxOutputTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Response{}, p.classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, &ProviderError{Provider: p.name, Kind: KindUpstreamMalformed, Err: errors.New("empty completion")}
	}
	return Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (p *OpenAICompatible) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: p.name,
			Kind:     classifyStatus(apiErr.HTTPStatusCode, apiErr.Message),
			Status:   apiErr.HTTPStatusCode,
			Err:      errors.New(apiErr.Message),
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		kind := classifyStatus(reqErr.HTTPStatusCode, reqErr.Error())
		if kind == KindUnknown && reqErr.HTTPStatusCode >= 200 && reqErr.HTTPStatusCode < 300 {
			kind = KindUpstreamMalformed
		}
		return &ProviderError{Provider: p.name, Kind: kind, Status: reqErr.HTTPStatusCode, Err: reqErr.Err}
	}
	return &ProviderError{Provider: p.name, Kind: classifyTransport(err), Err: err}
}
