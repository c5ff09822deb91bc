// Package timewindow resolves symbolic time-range specs into concrete
// windows. A Window is resolved once per run and reused for both the
// transcript request and the local message filter.
package timewindow

import (
	"fmt"
	"time"

	"github.com/iyou00/chatui/internal/logging"
)

// Kind discriminates Range.
type Kind string

const (
	KindRecent Kind = "recent"
	KindCustom Kind = "custom"
	KindAll    Kind = "all"
)

// DefaultRecentDays is used when a Recent range has no positive day count
// and when a Custom range carries no dates at all.
const DefaultRecentDays = 7

const dateLayout = "2006-01-02"

// Range is the symbolic time range stored on a task.
type Range struct {
	Kind Kind
	Days int // KindRecent

	// KindCustom. Start/End are the current field names; LegacyStart and
	// LegacyEnd hold values written under the old names and are consulted
	// only when the current pair is empty.
	Start       string
	End         string
	LegacyStart string
	LegacyEnd   string
}

// Recent returns a Recent{days} range.
func Recent(days int) Range { return Range{Kind: KindRecent, Days: days} }

// Custom returns a Custom{start,end} range.
func Custom(start, end string) Range { return Range{Kind: KindCustom, Start: start, End: end} }

// All returns the All range.
func All() Range { return Range{Kind: KindAll} }

// Window is a resolved, inclusive [Start, End] interval plus its wire form.
type Window struct {
	Start time.Time
	End   time.Time
	Wire  string
}

// Contains reports whether the epoch-millisecond instant ms lies in w.
func (w Window) Contains(ms int64) bool {
	return ms >= w.Start.UnixMilli() && ms <= w.End.UnixMilli()
}

func (w Window) String() string { return w.Wire }

// WireFormat renders w as "YYYY-MM-DD~YYYY-MM-DD" (inclusive calendar dates
// in the window's location).
func WireFormat(w Window) string {
	return w.Start.Format(dateLayout) + "~" + w.End.Format(dateLayout)
}

// Resolver turns Ranges into Windows. The zero value is ready to use.
type Resolver struct {
	Log logging.Logger
}

// Resolve is a pure function of (rng, now), apart from logging a Custom
// fallback. Dates are interpreted in now's location.
func (r Resolver) Resolve(rng Range, now time.Time) Window {
	loc := now.Location()
	var start, end time.Time

	switch rng.Kind {
	case KindAll:
		start = time.Date(2000, 1, 1, 0, 0, 0, 0, loc)
		end = endOfDay(time.Date(2099, 12, 31, 0, 0, 0, 0, loc))
	case KindCustom:
		startStr, endStr := rng.Start, rng.End
		if startStr == "" && endStr == "" {
			startStr, endStr = rng.LegacyStart, rng.LegacyEnd
		}
		s, sok := parseBound(startStr, loc, false)
		e, eok := parseBound(endStr, loc, true)
		switch {
		case !sok && !eok:
			logging.OrNop(r.Log).Warn("custom time range has no usable dates, falling back to recent days",
				logging.F("days", DefaultRecentDays),
				logging.F("start", startStr), logging.F("end", endStr))
			return r.Resolve(Recent(DefaultRecentDays), now)
		case !sok:
			s = startOfDay(e.AddDate(0, 0, -DefaultRecentDays))
		case !eok:
			e = now
		}
		if e.Before(s) {
			s, e = startOfDay(e), endOfDay(s)
		}
		start, end = s, e
	default:
		days := rng.Days
		if days <= 0 {
			days = DefaultRecentDays
		}
		start = now.AddDate(0, 0, -days)
		end = now
	}

	w := Window{Start: start, End: end}
	w.Wire = WireFormat(w)
	return w
}

// Resolve resolves rng with a zero Resolver.
func Resolve(rng Range, now time.Time) Window {
	return Resolver{}.Resolve(rng, now)
}

// parseBound parses a custom-range date. Date-only values expand to the
// start (or end, when upper is set) of that day.
func parseBound(s string, loc *time.Location, upper bool) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		if upper {
			return endOfDay(t), true
		}
		return t, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if layout == "2006/01/02" && upper {
				return endOfDay(t), true
			}
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ParseKind converts a stored kind string, defaulting to KindRecent.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindCustom, KindAll:
		return Kind(s)
	default:
		return KindRecent
	}
}

// Describe renders a human-readable label for a range, for prompts and logs.
func Describe(rng Range) string {
	switch rng.Kind {
	case KindAll:
		return "all history"
	case KindCustom:
		return fmt.Sprintf("%s to %s", firstNonEmpty(rng.Start, rng.LegacyStart), firstNonEmpty(rng.End, rng.LegacyEnd))
	default:
		days := rng.Days
		if days <= 0 {
			days = DefaultRecentDays
		}
		return fmt.Sprintf("last %d days", days)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
