package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shanghai = time.FixedZone("CST", 8*3600)

func TestResolve_RecentSevenDays(t *testing.T) {
	now := time.Date(2025, 1, 10, 15, 30, 0, 0, shanghai)

	w := Resolve(Recent(7), now)

	assert.Equal(t, "2025-01-03~2025-01-10", WireFormat(w))
	assert.Equal(t, w.Wire, WireFormat(w))
	assert.True(t, w.End.Equal(now))
	assert.True(t, w.Start.Equal(now.AddDate(0, 0, -7)))
}

func TestResolve_RecentNonPositiveDaysDefaults(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, shanghai)
	assert.Equal(t, "2025-01-03~2025-01-10", Resolve(Recent(0), now).Wire)
}

func TestResolve_AllIsFixedSentinel(t *testing.T) {
	a := Resolve(All(), time.Date(2025, 1, 10, 0, 0, 0, 0, shanghai))
	b := Resolve(All(), time.Date(1999, 6, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, "2000-01-01~2099-12-31", a.Wire)
	assert.Equal(t, a.Wire, b.Wire)
}

func TestResolve_CustomCurrentAndLegacyFields(t *testing.T) {
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, shanghai)

	current := Resolve(Custom("2025-07-01", "2025-07-18"), now)
	legacy := Resolve(Range{Kind: KindCustom, LegacyStart: "2025-07-01", LegacyEnd: "2025-07-18"}, now)

	assert.Equal(t, "2025-07-01~2025-07-18", current.Wire)
	assert.Equal(t, "2025-07-01~2025-07-18", legacy.Wire)

	// End date is inclusive.
	lastDay := time.Date(2025, 7, 18, 23, 59, 0, 0, shanghai).UnixMilli()
	assert.True(t, current.Contains(lastDay))
	assert.False(t, current.Contains(time.Date(2025, 7, 19, 0, 0, 1, 0, shanghai).UnixMilli()))
}

func TestResolve_CustomWithoutDatesFallsBackToRecent(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, shanghai)

	w := Resolve(Range{Kind: KindCustom}, now)

	assert.Equal(t, Resolve(Recent(7), now), w)
}

func TestResolve_CustomOneSided(t *testing.T) {
	now := time.Date(2025, 7, 20, 9, 0, 0, 0, shanghai)

	onlyStart := Resolve(Custom("2025-07-15", ""), now)
	assert.Equal(t, "2025-07-15~2025-07-20", onlyStart.Wire)

	onlyEnd := Resolve(Custom("", "2025-07-18"), now)
	assert.Equal(t, "2025-07-11~2025-07-18", onlyEnd.Wire)
}

func TestResolve_IsPure(t *testing.T) {
	now := time.Date(2025, 3, 3, 3, 3, 3, 0, shanghai)
	assert.Equal(t, Resolve(Recent(3), now), Resolve(Recent(3), now))
}

type rawMsg struct {
	id int
	ts any
}

func TestFilter_SecondsMillisAndMissing(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, shanghai)
	w := Resolve(Recent(7), now)

	inside := time.Date(2025, 1, 8, 10, 0, 0, 0, shanghai)
	outside := time.Date(2024, 12, 1, 10, 0, 0, 0, shanghai)

	msgs := []rawMsg{
		{id: 1, ts: outside.Unix()},        // 10-digit seconds, outside
		{id: 2, ts: inside.UnixMilli()},    // milliseconds, inside
		{id: 3, ts: nil},                   // no timestamp
		{id: 4, ts: "2025-01-09 08:00:00"}, // date string, inside
		{id: 5, ts: float64(inside.Unix())},
		{id: 6, ts: "not a time"},
	}

	kept, stats := Filter(msgs, w, func(m rawMsg) any { return m.ts })

	require.Len(t, kept, 3)
	assert.Equal(t, []int{2, 4, 5}, []int{kept[0].id, kept[1].id, kept[2].id})
	assert.Equal(t, FilterStats{Kept: 3, Outside: 1, Missing: 2}, stats)
}

func TestNormalizeTimestamp(t *testing.T) {
	loc := shanghai
	base := time.Date(2025, 7, 1, 10, 3, 0, 0, loc)
	ms := base.UnixMilli()

	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"seconds int64", base.Unix(), ms, true},
		{"millis int64", ms, ms, true},
		{"seconds string", "1751335380", 1751335380000, true},
		{"millis string", "1751335380000", 1751335380000, true},
		{"micros", ms * 1000, ms, true},
		{"datetime string", "2025-07-01 10:03:00", ms, true},
		{"rfc3339", base.Format(time.RFC3339), ms, true},
		{"time value", base, ms, true},
		{"zero", int64(0), 0, false},
		{"empty string", "  ", 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.in, loc)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseKindAndDescribe(t *testing.T) {
	assert.Equal(t, KindRecent, ParseKind(""))
	assert.Equal(t, KindAll, ParseKind("all"))
	assert.Equal(t, KindCustom, ParseKind("custom"))

	assert.Equal(t, "last 7 days", Describe(Recent(0)))
	assert.Equal(t, "all history", Describe(All()))
	assert.Equal(t, "2025-07-01 to 2025-07-18", Describe(Range{Kind: KindCustom, LegacyStart: "2025-07-01", LegacyEnd: "2025-07-18"}))
}
