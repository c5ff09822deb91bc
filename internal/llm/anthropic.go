package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(apiKey, baseURL string, httpClient *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = DefaultBaseURLs[ProviderAnthropic]
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Anthropic{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	body := anthropicRequest{
		Model:     req.Model.ID,
		MaxTokens: req.Model.MaxOutputTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.User}},
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, p.http, ProviderAnthropic, p.baseURL+"/v1/messages", headers, body, &resp, anthropicErrorMessage); err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Kind: KindUpstreamMalformed, Err: errors.New("no text content")}
	}
	return Response{Text: sb.String(), InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}, nil
}

func anthropicErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) != nil {
		return ""
	}
	return strings.TrimSpace(e.Error.Type + " " + e.Error.Message)
}
