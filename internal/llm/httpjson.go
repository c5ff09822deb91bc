package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 4096

// postJSON sends body to url and decodes a 2xx response into out. Every
// failure comes back as a *ProviderError. errMessage extracts the vendor's
// error text from a non-2xx body.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any, errMessage func([]byte) string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &ProviderError{Provider: provider, Kind: KindUnknown, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &ProviderError{Provider: provider, Kind: KindUnknown, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		if errMessage != nil {
			if m := errMessage(raw); m != "" {
				msg = m
			}
		}
		return &ProviderError{
			Provider: provider,
			Kind:     classifyStatus(resp.StatusCode, msg),
			Status:   resp.StatusCode,
			Err:      errors.New(msg),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		kind := KindUpstreamMalformed
		if k := classifyTransport(err); k == KindTimeout || k == KindUnreachable {
			kind = k
		}
		return &ProviderError{Provider: provider, Kind: kind, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
