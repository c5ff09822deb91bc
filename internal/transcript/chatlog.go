package transcript

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/timewindow"
)

const (
	defaultChatlogTimeout = 30 * time.Second
	// maxBodyBytes caps a single transcript response.
	maxBodyBytes = 64 << 20
)

// ChatlogOpts holds parameters for creating a ChatlogClient.
type ChatlogOpts struct {
	BaseURL string
	Timeout time.Duration
	Format  string // "text" unless set
	Log     logging.Logger

	// For testing: inject the HTTP client and the parse reference clock.
	HTTPClient *http.Client
	Now        func() time.Time
}

// ChatlogClient fetches transcripts from the chatlog HTTP service.
type ChatlogClient struct {
	baseURL string
	timeout time.Duration
	format  string
	http    *http.Client
	now     func() time.Time
	log     logging.Logger
}

// NewChatlogClient creates a ChatlogClient.
func NewChatlogClient(opts ChatlogOpts) (*ChatlogClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("transcript: chatlog base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("transcript: chatlog base URL: %w", err)
	}
	c := &ChatlogClient{
		baseURL: base,
		timeout: opts.Timeout,
		format:  opts.Format,
		http:    opts.HTTPClient,
		now:     opts.Now,
		log:     logging.OrNop(opts.Log),
	}
	if c.timeout <= 0 {
		c.timeout = defaultChatlogTimeout
	}
	if c.format == "" {
		c.format = "text"
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// RequestURL returns the chatlog URL for room and w.
func (c *ChatlogClient) RequestURL(room string, w timewindow.Window) string {
	q := url.Values{}
	q.Set("talker", room)
	q.Set("time", w.Wire)
	q.Set("format", c.format)
	return c.baseURL + "/api/v1/chatlog?" + q.Encode()
}

// Fetch implements Source. It fails fast on transport errors, non-2xx
// statuses, and HTML error pages; it does not retry.
func (c *ChatlogClient) Fetch(ctx context.Context, room string, w timewindow.Window) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(room, w), nil)
	if err != nil {
		return nil, fmt.Errorf("transcript: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript: fetch %s: %w", room, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", room, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("transcript: fetch %s: status %d: %s", room, resp.StatusCode, snippet(body))
	}
	if isHTMLPage(body) {
		return nil, fmt.Errorf("transcript: fetch %s: %w", room, ErrHTMLPage)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("transcript: fetch %s: %w", room, ErrEmpty)
	}

	body = decodeBody(body, resp.Header.Get("Content-Type"))
	res := Parse(body, ParseOptions{Now: c.now().In(w.Start.Location())})
	if !res.OK {
		return nil, fmt.Errorf("transcript: fetch %s: %w", room, ErrUnrecognized)
	}

	msgs, stats := Normalize(res.Messages, w)
	c.log.Debug("transcript fetched",
		logging.F("room", room),
		logging.F("format", string(res.Format)),
		logging.F("kept", stats.Kept),
		logging.F("outside", stats.Outside),
		logging.F("missing_time", stats.Missing),
	)
	return msgs, nil
}

// isHTMLPage reports whether body is an HTML document rather than data.
func isHTMLPage(body []byte) bool {
	head := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(head) > 64 {
		head = head[:64]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
