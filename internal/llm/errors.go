package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind is the provider-independent failure taxonomy.
type Kind string

const (
	KindNone              Kind = ""
	KindUnauthenticated   Kind = "unauthenticated"
	KindRateLimited       Kind = "rate_limited"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindTimeout           Kind = "timeout"
	KindUnreachable       Kind = "unreachable"
	KindUpstreamMalformed Kind = "upstream_malformed"
	KindUnknown           Kind = "unknown"
)

// ProviderError is the only error type providers return. Err keeps the
// wire detail for logs; callers decide on Kind.
type ProviderError struct {
	Provider string
	Kind     Kind
	Status   int // HTTP status, 0 when no response was received
	Err      error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "llm: %s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.Status)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify returns the Kind of err. Errors that are not ProviderErrors are
// classified as transport failures.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classifyTransport(err)
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
	)
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindUnreachable
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindUpstreamMalformed
	}
	return KindUnknown
}

// classifyStatus maps an HTTP error status, and the provider's error
// message where the status alone is ambiguous, to a Kind.
func classifyStatus(status int, message string) Kind {
	msg := strings.ToLower(message)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthenticated
	case status == http.StatusTooManyRequests || status == 529:
		return KindRateLimited
	case status == http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return KindUnreachable
	case status == http.StatusBadRequest && mentionsAny(msg, "api key not valid", "invalid api key", "api_key_invalid", "incorrect api key"):
		return KindUnauthenticated
	case status == http.StatusBadRequest && mentionsAny(msg, "context length", "context_length", "maximum context", "too long", "too many tokens", "exceeds the maximum", "range of input length"):
		return KindPayloadTooLarge
	default:
		return KindUnknown
	}
}

func mentionsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// UserMessage is the report-facing explanation for a failure kind.
func UserMessage(k Kind) string {
	switch k {
	case KindUnauthenticated:
		return "模型服务认证失败，请检查 API Key 配置。"
	case KindRateLimited:
		return "模型服务请求过于频繁，已被限流，请稍后重试。"
	case KindPayloadTooLarge:
		return "聊天记录过长，超出模型输入限制，请缩短时间范围或减少群聊数量。"
	case KindTimeout:
		return "模型服务响应超时，请稍后重试。"
	case KindUnreachable:
		return "无法连接到模型服务，请检查网络或服务地址。"
	case KindUpstreamMalformed:
		return "模型服务返回了无法解析的响应。"
	default:
		return "分析过程中发生未知错误。"
	}
}
