package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   Kind
	}{
		{http.StatusUnauthorized, "", KindUnauthenticated},
		{http.StatusForbidden, "", KindUnauthenticated},
		{http.StatusTooManyRequests, "", KindRateLimited},
		{529, "overloaded_error", KindRateLimited},
		{http.StatusRequestEntityTooLarge, "", KindPayloadTooLarge},
		{http.StatusBadRequest, "This model's maximum context length is 8192 tokens", KindPayloadTooLarge},
		{http.StatusBadRequest, "INVALID_ARGUMENT API key not valid. Please pass a valid API key.", KindUnauthenticated},
		{http.StatusBadRequest, "bad field", KindUnknown},
		{http.StatusGatewayTimeout, "", KindTimeout},
		{http.StatusServiceUnavailable, "", KindUnreachable},
		{http.StatusInternalServerError, "", KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.status, tt.msg), "%d %q", tt.status, tt.msg)
	}
}

func TestClassify(t *testing.T) {
	pe := &ProviderError{Provider: "openai", Kind: KindRateLimited, Status: 429}
	assert.Equal(t, KindRateLimited, Classify(fmt.Errorf("wrapped: %w", pe)))
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindUnreachable, Classify(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, KindUnknown, Classify(errors.New("mystery")))
}

func TestProviderError_Message(t *testing.T) {
	err := &ProviderError{Provider: "gemini", Kind: KindUnauthenticated, Status: 400, Err: errors.New("API key not valid")}
	assert.Equal(t, "llm: gemini: unauthenticated (status 400): API key not valid", err.Error())
	assert.True(t, errors.Is(err, err.Err))
}

func TestUserMessage_DistinctPerKind(t *testing.T) {
	kinds := []Kind{KindUnauthenticated, KindRateLimited, KindPayloadTooLarge, KindTimeout, KindUnreachable, KindUpstreamMalformed, KindUnknown}
	seen := make(map[string]Kind)
	for _, k := range kinds {
		msg := UserMessage(k)
		assert.NotEmpty(t, msg)
		if prev, dup := seen[msg]; dup {
			t.Errorf("kinds %s and %s share message %q", prev, k, msg)
		}
		seen[msg] = k
	}
}
