// Package discord implements a transcript Source backed by Discord channel
// messages, paginated backwards from the end of the window.
package discord

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/timewindow"
	"github.com/iyou00/chatui/internal/transcript"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff for rate-limited calls.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 30 * time.Second
	// pageSize is the Discord maximum for channel messages.
	pageSize = 100
	// discordEpoch is the first millisecond of 2015, the snowflake epoch.
	discordEpoch = 1420070400000
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// SourceOpts holds parameters for creating a Discord Source.
type SourceOpts struct {
	BotToken string
	Log      logging.Logger
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// Source fetches channel history for discord: rooms over the REST API.
type Source struct {
	sess        session
	log         logging.Logger
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// New creates a Discord Source.
func New(opts SourceOpts) (*Source, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	s := &Source{
		sess:        opts.Session,
		log:         logging.OrNop(opts.Log),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if s.sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		s.sess = dg
	}
	return s, nil
}

// Fetch implements transcript.Source. Pages are requested newest first,
// starting just after the window end, until a page reaches back past the
// window start. Messages are returned oldest first.
func (s *Source) Fetch(ctx context.Context, channelID string, w timewindow.Window) ([]transcript.Message, error) {
	startMS := w.Start.UnixMilli()
	beforeID := snowflakeAt(w.End.UnixMilli() + 1)

	var out []transcript.Message
	for {
		var msgs []*discordgo.Message
		err := s.retryOnRateLimit(ctx, func() error {
			var apiErr error
			msgs, apiErr = s.sess.ChannelMessages(channelID, pageSize, beforeID, "", "", discordgo.WithContext(ctx))
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("discord: channel messages %s: %w", channelID, err)
		}
		if len(msgs) == 0 {
			break
		}

		reachedStart := false
		for _, m := range msgs {
			ms := m.Timestamp.UnixMilli()
			if ms < startMS {
				reachedStart = true
				continue
			}
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			out = append(out, transcript.Message{
				Sender:    authorName(m.Author),
				Content:   strings.TrimSpace(m.Content),
				Timestamp: ms,
			})
		}

		// Paginate backwards: use the last message ID as the "before" cursor.
		beforeID = msgs[len(msgs)-1].ID
		if reachedStart || len(msgs) < pageSize {
			break
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	out = transcript.FilterMessages(out, w)
	s.log.Debug("discord history fetched", logging.F("channel", channelID), logging.F("messages", len(out)))
	return out, nil
}

func authorName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// snowflakeAt returns the smallest snowflake ID created at epoch ms.
func snowflakeAt(ms int64) string {
	if ms < discordEpoch {
		return "0"
	}
	return strconv.FormatInt((ms-discordEpoch)<<22, 10)
}

// retryOnRateLimit retries fn with exponential backoff on HTTP 429.
func (s *Source) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * s.baseBackoff
		if wait > s.maxBackoff {
			wait = s.maxBackoff
		}
		s.log.Warn("discord rate limited, retrying",
			logging.F("attempt", attempt+1), logging.F("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
