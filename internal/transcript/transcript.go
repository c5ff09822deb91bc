// Package transcript acquires room transcripts and normalizes them into
// Messages. Sources fetch raw data; the parse attempts in detect.go turn
// whatever shape the source returned into RawMessages.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iyou00/chatui/internal/timewindow"
)

// Message is one normalized chat message. Immutable once produced.
type Message struct {
	Sender    string
	Content   string
	Timestamp int64 // epoch milliseconds
}

// RawMessage is a parsed message whose timestamp has not been normalized.
type RawMessage struct {
	Sender  string
	Content string
	Time    any
}

// Source fetches a room's messages for a window.
type Source interface {
	Fetch(ctx context.Context, room string, w timewindow.Window) ([]Message, error)
}

// CacheStore is the local copy of room messages used when a live fetch
// fails or returns nothing.
type CacheStore interface {
	GetMessagesForRoom(ctx context.Context, room string) ([]Message, error)
	PutMessages(ctx context.Context, room string, msgs []Message) error
}

var (
	// ErrHTMLPage is returned when a source answers with an HTML page
	// instead of data.
	ErrHTMLPage = errors.New("transcript: service returned an HTML page")
	// ErrEmpty is returned when a source answers with an empty body.
	ErrEmpty = errors.New("transcript: service returned an empty body")
	// ErrUnrecognized is returned when no parse attempt recognized the body.
	ErrUnrecognized = errors.New("transcript: unrecognized response format")
	// ErrNoSource is returned by Router for a room prefix with no source.
	ErrNoSource = errors.New("transcript: no source for room")
)

// Normalize filters raw messages to w and converts timestamps to epoch ms.
func Normalize(raws []RawMessage, w timewindow.Window) ([]Message, timewindow.FilterStats) {
	kept, stats := timewindow.Filter(raws, w, func(r RawMessage) any { return r.Time })
	loc := w.Start.Location()
	out := make([]Message, 0, len(kept))
	for _, r := range kept {
		ms, _ := timewindow.NormalizeTimestamp(r.Time, loc)
		out = append(out, Message{Sender: r.Sender, Content: r.Content, Timestamp: ms})
	}
	return out, stats
}

// FilterMessages keeps normalized messages that fall inside w.
func FilterMessages(msgs []Message, w timewindow.Window) []Message {
	kept, _ := timewindow.Filter(msgs, w, func(m Message) any { return m.Timestamp })
	return kept
}

// Router dispatches rooms to sources by prefix: "slack:C123" goes to the
// source registered under "slack"; unprefixed rooms go to Default.
type Router struct {
	Default  Source
	Prefixed map[string]Source
}

// SplitRoom separates an optional "<platform>:" prefix from a room id.
func SplitRoom(room string) (prefix, id string) {
	if i := strings.Index(room, ":"); i > 0 {
		p := strings.ToLower(room[:i])
		switch p {
		case "slack", "discord":
			return p, room[i+1:]
		}
	}
	return "", room
}

// Fetch implements Source.
func (r *Router) Fetch(ctx context.Context, room string, w timewindow.Window) ([]Message, error) {
	prefix, id := SplitRoom(room)
	if prefix == "" {
		if r.Default == nil {
			return nil, fmt.Errorf("%w %q", ErrNoSource, room)
		}
		return r.Default.Fetch(ctx, room, w)
	}
	src, ok := r.Prefixed[prefix]
	if !ok || src == nil {
		return nil, fmt.Errorf("%w %q (%s not configured)", ErrNoSource, room, prefix)
	}
	return src.Fetch(ctx, id, w)
}
