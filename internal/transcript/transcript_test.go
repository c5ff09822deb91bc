package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyou00/chatui/internal/timewindow"
)

type stubSource struct {
	rooms []string
	msgs  []Message
}

func (s *stubSource) Fetch(_ context.Context, room string, _ timewindow.Window) ([]Message, error) {
	s.rooms = append(s.rooms, room)
	return s.msgs, nil
}

func TestSplitRoom(t *testing.T) {
	tests := []struct{ in, prefix, id string }{
		{"slack:C123", "slack", "C123"},
		{"Discord:42", "discord", "42"},
		{"产品群", "", "产品群"},
		{"team:alpha", "", "team:alpha"},
		{":x", "", ":x"},
	}
	for _, tt := range tests {
		p, id := SplitRoom(tt.in)
		assert.Equal(t, tt.prefix, p, tt.in)
		assert.Equal(t, tt.id, id, tt.in)
	}
}

func TestRouter_Dispatch(t *testing.T) {
	def, sl := &stubSource{}, &stubSource{}
	r := &Router{Default: def, Prefixed: map[string]Source{"slack": sl}}
	w := testWindow()

	_, err := r.Fetch(context.Background(), "产品群", w)
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), "slack:C9", w)
	require.NoError(t, err)

	assert.Equal(t, []string{"产品群"}, def.rooms)
	assert.Equal(t, []string{"C9"}, sl.rooms)

	_, err = r.Fetch(context.Background(), "discord:1", w)
	assert.True(t, errors.Is(err, ErrNoSource))
}

func TestRouter_NoDefault(t *testing.T) {
	_, err := (&Router{}).Fetch(context.Background(), "room", testWindow())
	assert.True(t, errors.Is(err, ErrNoSource))
}

func TestNormalize_CountsMissingAndOutside(t *testing.T) {
	w := testWindow()
	in := time.Date(2025, 7, 2, 9, 0, 0, 0, cst)
	raws := []RawMessage{
		{Sender: "a", Content: "kept", Time: in.Unix()},
		{Sender: "b", Content: "no time"},
		{Sender: "c", Content: "old", Time: "2024-01-01 00:00:00"},
	}

	msgs, stats := Normalize(raws, w)
	require.Len(t, msgs, 1)
	assert.Equal(t, in.UnixMilli(), msgs[0].Timestamp)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 1, stats.Outside)
}

func TestFilterMessages(t *testing.T) {
	w := testWindow()
	msgs := []Message{
		{Content: "in", Timestamp: w.Start.UnixMilli()},
		{Content: "out", Timestamp: w.End.UnixMilli() + 1},
	}
	got := FilterMessages(msgs, w)
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].Content)
}
