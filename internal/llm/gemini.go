package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Gemini calls the generateContent endpoint.
type Gemini struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(apiKey, baseURL string, httpClient *http.Client) *Gemini {
	if baseURL == "" {
		baseURL = DefaultBaseURLs[ProviderGemini]
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Gemini{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete implements Provider.
func (p *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	body := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.User}}}},
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: req.Model.MaxOutputTokens},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	// The key travels in a header so transport errors, which quote the URL,
	// never carry it.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model.ID))
	headers := map[string]string{"x-goog-api-key": p.apiKey}

	var resp geminiResponse
	if err := postJSON(ctx, p.http, ProviderGemini, endpoint, headers, body, &resp, geminiErrorMessage); err != nil {
		return Response{}, err
	}

	if len(resp.Candidates) == 0 {
		return Response{}, &ProviderError{Provider: ProviderGemini, Kind: KindUpstreamMalformed, Err: errors.New("no candidates")}
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return Response{}, &ProviderError{Provider: ProviderGemini, Kind: KindUpstreamMalformed, Err: errors.New("empty candidate")}
	}
	return Response{
		Text:         sb.String(),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func geminiErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) != nil {
		return ""
	}
	return strings.TrimSpace(e.Error.Status + " " + e.Error.Message)
}
