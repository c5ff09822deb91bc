package timewindow

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// FilterStats counts what Filter did with its input.
type FilterStats struct {
	Kept    int
	Outside int // had a timestamp outside the window
	Missing int // had no usable timestamp
}

// Filter keeps the items whose timestamp falls within w. stamp returns the
// item's raw timestamp: epoch seconds, epoch milliseconds, a numeric
// string, a date string, or a time.Time. Items with no usable timestamp are
// dropped and counted in FilterStats.Missing.
func Filter[T any](items []T, w Window, stamp func(T) any) ([]T, FilterStats) {
	var stats FilterStats
	loc := w.Start.Location()
	kept := make([]T, 0, len(items))
	for _, it := range items {
		ms, ok := NormalizeTimestamp(stamp(it), loc)
		if !ok {
			stats.Missing++
			continue
		}
		if !w.Contains(ms) {
			stats.Outside++
			continue
		}
		kept = append(kept, it)
	}
	stats.Kept = len(kept)
	return kept, stats
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeTimestamp converts a raw timestamp to epoch milliseconds. Numbers
// below 1e11 (10 digits or fewer) are epoch seconds; below 1e14 epoch
// milliseconds; larger values are treated as micro- or nanoseconds. Date
// strings without a zone are read in loc.
func NormalizeTimestamp(v any, loc *time.Location) (int64, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case int:
		return fromNumber(float64(t))
	case int64:
		return fromInt(t)
	case int32:
		return fromInt(int64(t))
	case uint64:
		return fromInt(int64(t))
	case float64:
		return fromNumber(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromInt(n)
		}
		if f, err := t.Float64(); err == nil {
			return fromNumber(f)
		}
		return 0, false
	case string:
		return fromString(t, loc)
	default:
		return 0, false
	}
}

func fromNumber(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return fromInt(int64(f))
}

func fromInt(n int64) (int64, bool) {
	switch {
	case n <= 0:
		return 0, false
	case n < 1e11:
		return n * 1000, true
	case n < 1e14:
		return n, true
	case n < 1e17:
		return n / 1e3, true
	default:
		return n / 1e6, true
	}
}

func fromString(s string, loc *time.Location) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
