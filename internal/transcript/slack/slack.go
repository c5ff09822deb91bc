// Package slack implements a transcript Source backed by Slack channel
// history (conversations.history).
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/timewindow"
	"github.com/iyou00/chatui/internal/transcript"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// defaultPageSize is the conversations.history page size.
	defaultPageSize = 200
)

// historyClient abstracts the Slack API methods we use, enabling test mocks.
type historyClient interface {
	GetConversationHistoryContext(ctx context.Context, params *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slackapi.User, error)
}

// SourceOpts holds parameters for creating a Slack Source.
type SourceOpts struct {
	BotToken string // xoxb-... Slack bot token
	PageSize int
	Log      logging.Logger
	// For testing: inject a mock client instead of the real Slack API.
	Client historyClient
}

// Source fetches channel history for slack: rooms.
type Source struct {
	client   historyClient
	pageSize int
	log      logging.Logger

	mu    sync.Mutex
	names map[string]string // user ID -> display name
}

// New creates a Slack Source.
func New(opts SourceOpts) (*Source, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	s := &Source{
		client:   opts.Client,
		pageSize: opts.PageSize,
		log:      logging.OrNop(opts.Log),
		names:    make(map[string]string),
	}
	if s.client == nil {
		s.client = slackapi.New(opts.BotToken)
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	return s, nil
}

// Fetch implements transcript.Source. channelID is the room with its
// "slack:" prefix removed. Messages are returned oldest first.
func (s *Source) Fetch(ctx context.Context, channelID string, w timewindow.Window) ([]transcript.Message, error) {
	var out []transcript.Message
	cursor := ""

	for {
		params := &slackapi.GetConversationHistoryParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Oldest:    formatSlackTimestamp(w.Start.UnixMilli()),
			Latest:    formatSlackTimestamp(w.End.UnixMilli()),
			Inclusive: true,
			Limit:     s.pageSize,
		}

		var resp *slackapi.GetConversationHistoryResponse
		err := retryOnRateLimit(ctx, func() error {
			var apiErr error
			resp, apiErr = s.client.GetConversationHistoryContext(ctx, params)
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("slack: conversation history %s: %w", channelID, err)
		}

		for _, m := range resp.Messages {
			if skipSubtype(m.SubType) || strings.TrimSpace(m.Text) == "" {
				continue
			}
			sender := m.Username
			if m.User != "" {
				sender = s.resolveUserName(ctx, m.User)
			}
			out = append(out, transcript.Message{
				Sender:    sender,
				Content:   strings.TrimSpace(m.Text),
				Timestamp: parseSlackTimestamp(m.Timestamp),
			})
		}

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		cursor = resp.ResponseMetaData.NextCursor
	}

	// conversations.history pages newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	out = transcript.FilterMessages(out, w)
	s.log.Debug("slack history fetched", logging.F("channel", channelID), logging.F("messages", len(out)))
	return out, nil
}

// skipSubtype reports whether a message subtype carries no conversation
// content (joins, topic changes, and the like).
func skipSubtype(subtype string) bool {
	switch subtype {
	case "", "bot_message", "thread_broadcast", "file_share", "me_message":
		return false
	default:
		return true
	}
}

// resolveUserName looks up a user's display name, caching the result.
// Falls back to the user ID.
func (s *Source) resolveUserName(ctx context.Context, userID string) string {
	s.mu.Lock()
	name, ok := s.names[userID]
	s.mu.Unlock()
	if ok {
		return name
	}

	name = userID
	if user, err := s.client.GetUserInfoContext(ctx, userID); err == nil {
		switch {
		case user.Profile.DisplayName != "":
			name = user.Profile.DisplayName
		case user.RealName != "":
			name = user.RealName
		}
	}

	s.mu.Lock()
	s.names[userID] = name
	s.mu.Unlock()
	return name
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// formatSlackTimestamp renders epoch milliseconds as a Slack ts
// ("1234567890.123000").
func formatSlackTimestamp(ms int64) string {
	return fmt.Sprintf("%d.%06d", ms/1000, (ms%1000)*1000)
}

// parseSlackTimestamp converts a Slack ts ("1234567890.123456") to epoch
// milliseconds.
func parseSlackTimestamp(ts string) int64 {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return 0
	}
	ms := s * 1000
	if len(frac) >= 3 {
		if f, err := strconv.ParseInt(frac[:3], 10, 64); err == nil {
			ms += f
		}
	}
	return ms
}
