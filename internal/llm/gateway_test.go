package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyou00/chatui/internal/config"
	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/prompt"
	"github.com/iyou00/chatui/internal/timewindow"
	"github.com/iyou00/chatui/internal/transcript"
)

// --- Helpers ---

type recordingObserver struct {
	mu    sync.Mutex
	kinds []Kind
}

func (r *recordingObserver) ObserveAttempt(_ string, kind Kind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func testBundle() prompt.Bundle {
	now := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	w := timewindow.Resolve(timewindow.Recent(3), now)
	msgs := []transcript.Message{{Sender: "alice", Content: "发布延期到周五", Timestamp: now.Add(-time.Hour).UnixMilli()}}
	return prompt.Build("你是分析师", []prompt.RoomBlock{{Room: "产品群", Messages: msgs}}, w)
}

func fastPolicy() Policy {
	return Policy{MaxAttempts: 2, Delay: LinearDelay(time.Millisecond)}
}

func chatCompletion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "m",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
	})
	return string(b)
}

// --- OpenAI-compatible family ---

func TestGateway_OpenAICompatibleSuccess(t *testing.T) {
	var body map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, path = r.Header.Get("Authorization"), r.URL.Path
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletion("好的：\n```html\n<!DOCTYPE html><html><body>报告</body></html>\n```\n以上。"))
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderDeepSeek: NewOpenAICompatible(ProviderDeepSeek, "sk-test", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "产品群", testBundle(), "deepseek")

	require.True(t, out.OK, "err = %v", out.Err)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "deepseek-chat", body["model"])
	assert.EqualValues(t, 8192, body["max_tokens"])
	assert.Nil(t, body["max_completion_tokens"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Contains(t, msgs[1].(map[string]any)["content"], "## 群聊: 产品群")

	assert.Equal(t, ShapeFencedDocument, out.Shape)
	assert.Equal(t, "<!DOCTYPE html><html><body>报告</body></html>", out.HTML)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 120, out.InputTokens)
	assert.Equal(t, 40, out.OutputTokens)
	assert.Equal(t, ProviderDeepSeek, out.Provider)
}

func TestGateway_ReasoningModelUsesMaxCompletionTokens(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		io.WriteString(w, chatCompletion("plain summary"))
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderOpenAI: NewOpenAICompatible(ProviderOpenAI, "k", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "o3-mini")

	require.True(t, out.OK, "err = %v", out.Err)
	assert.EqualValues(t, 32768, body["max_completion_tokens"])
	assert.Nil(t, body["max_tokens"])
	assert.Equal(t, ShapePlainText, out.Shape)
	assert.Contains(t, out.HTML, "plain summary")
}

func TestGateway_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"rate limit reached","type":"requests"}}`)
			return
		}
		io.WriteString(w, chatCompletion("<h2>结论</h2>"))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	gw := New(Opts{
		Providers: map[string]Provider{ProviderQwen: NewOpenAICompatible(ProviderQwen, "k", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
		Observer:  obs,
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "qwen-plus")

	require.True(t, out.OK, "err = %v", out.Err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, ShapePartialHTML, out.Shape)
	assert.Equal(t, []Kind{KindRateLimited, KindNone}, obs.kinds)
}

func TestGateway_ExhaustedRetriesYieldFailurePage(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderOpenAI: NewOpenAICompatible(ProviderOpenAI, "bad", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "gpt-4o")

	assert.False(t, out.OK)
	assert.Equal(t, KindUnauthenticated, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Contains(t, out.HTML, UserMessage(KindUnauthenticated))
	assert.NotContains(t, out.HTML, "Incorrect API key", "wire detail stays out of the report")
	assert.Equal(t, UserMessage(KindUnauthenticated), out.UserMessage())
}

func TestGateway_UnknownModelAndMissingProvider(t *testing.T) {
	gw := New(Opts{Policy: fastPolicy()})

	out := gw.Analyze(context.Background(), "r", testBundle(), "llama-3")
	assert.False(t, out.OK)
	assert.Equal(t, KindUnknown, out.Kind)
	assert.Equal(t, 0, out.Attempts)

	out = gw.Analyze(context.Background(), "r", testBundle(), "claude")
	assert.False(t, out.OK)
	assert.Equal(t, KindUnauthenticated, out.Kind)
	assert.NotEmpty(t, out.HTML)
}

// --- Anthropic ---

func TestGateway_Anthropic(t *testing.T) {
	var got anthropicRequest
	var key, version, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, version, path = r.Header.Get("x-api-key"), r.Header.Get("anthropic-version"), r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"content":[{"type":"text","text":"<!DOCTYPE html><html></html>"}],"usage":{"input_tokens":9,"output_tokens":3}}`)
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderAnthropic: NewAnthropic("ak", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "claude")

	require.True(t, out.OK, "err = %v", out.Err)
	assert.Equal(t, "ak", key)
	assert.Equal(t, anthropicVersion, version)
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	assert.Equal(t, "你是分析师", got.System)
	assert.Equal(t, 8192, got.MaxTokens)
	assert.Equal(t, ShapeFullDocument, out.Shape)
	assert.Equal(t, 9, out.InputTokens)
}

func TestGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderAnthropic: NewAnthropic("ak", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
		Timeout:   50 * time.Millisecond,
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "claude")

	assert.False(t, out.OK)
	assert.Equal(t, KindTimeout, out.Kind)
	assert.Equal(t, 2, out.Attempts)
}

// --- Gemini ---

func TestGateway_Gemini(t *testing.T) {
	var got geminiRequest
	var path, key, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, key = r.URL.Path, r.Header.Get("x-goog-api-key")
		query = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"总结"},{"text":"完毕"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2}}`)
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderGemini: NewGemini("gk", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "gemini")

	require.True(t, out.OK, "err = %v", out.Err)
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", path)
	assert.Equal(t, "gk", key)
	assert.Empty(t, query)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "你是分析师", got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "总结完毕", out.Raw)
	assert.Equal(t, ShapePlainText, out.Shape)
}

func TestGateway_GeminiInvalidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderGemini: NewGemini("bad", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "gemini-2.5-pro")
	assert.Equal(t, KindUnauthenticated, out.Kind)
}

func TestGemini_TransportErrorOmitsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	var logs bytes.Buffer
	gw := New(Opts{
		Providers: map[string]Provider{ProviderGemini: NewGemini("SECRET-KEY-123", base, nil)},
		Policy:    fastPolicy(),
		Log:       logging.New(logging.Config{Level: "debug", JSON: true, Output: &logs}),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "gemini")

	require.False(t, out.OK)
	assert.Equal(t, KindUnreachable, out.Kind)
	require.Error(t, out.Err)
	assert.NotContains(t, out.Err.Error(), "SECRET-KEY-123")
	assert.NotContains(t, logs.String(), "SECRET-KEY-123")
	assert.NotContains(t, out.HTML, "SECRET-KEY-123")
}

func TestGateway_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[`)
	}))
	defer srv.Close()

	gw := New(Opts{
		Providers: map[string]Provider{ProviderGemini: NewGemini("k", srv.URL, srv.Client())},
		Policy:    fastPolicy(),
	})
	out := gw.Analyze(context.Background(), "r", testBundle(), "gemini")
	assert.Equal(t, KindUpstreamMalformed, out.Kind)
}

// --- Registry ---

func TestNewProviders(t *testing.T) {
	cfg := config.LLMConfig{Providers: map[string]config.ProviderConfig{
		"openai":    {APIKey: "sk"},
		"anthropic": {APIKey: "ak", BaseURL: "http://proxy"},
		"gemini":    {},
	}}
	ps := NewProviders(cfg, nil)

	assert.Len(t, ps, 2)
	assert.IsType(t, &OpenAICompatible{}, ps["openai"])
	a, ok := ps["anthropic"].(*Anthropic)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(a.baseURL, "http://proxy"))
}
