package transcript

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/width"
)

const (
	fullDatePattern = `\d{4}[-/.]\d{1,2}[-/.]\d{1,2}[ T]\d{1,2}:\d{2}(?::\d{2})?`
	monthDayPattern = `\d{1,2}[-/]\d{1,2}\s+\d{1,2}:\d{2}(?::\d{2})?`
	clockPattern    = `\d{1,2}:\d{2}:\d{2}`

	// sniffLines is how many non-empty lines are scanned to recognize a
	// free-text transcript.
	sniffLines = 10
)

var (
	headerRe = regexp.MustCompile(`^(\S.*?)\s+(` + fullDatePattern + `|` + monthDayPattern + `|` + clockPattern + `)$`)
	stampRe  = regexp.MustCompile(fullDatePattern + `|` + monthDayPattern + `|` + clockPattern)
	idRe     = regexp.MustCompile(`\s*\([^()]*\)$`)
)

// parseTextTranscript recognizes a free-text transcript by scanning its
// first non-empty lines for a timestamp, then runs the line state machine.
func parseTextTranscript(body []byte, opts ParseOptions) ParseResult {
	text := string(body)
	if !looksLikeTranscript(text) {
		return unrecognized()
	}
	msgs := ParseText(text, opts)
	if len(msgs) == 0 {
		return unrecognized()
	}
	return parsed(FormatText, msgs)
}

func looksLikeTranscript(text string) bool {
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if seen == 0 && looksLikeCSVHeader(line) {
			return false
		}
		if stampRe.MatchString(width.Narrow.String(line)) {
			return true
		}
		seen++
		if seen >= sniffLines {
			break
		}
	}
	return false
}

// ParseText runs the transcript state machine. A header line
// "<sender>[(id)] <timestamp>" opens a message and flushes the previous
// one; any other line is appended to the open message; end of input
// flushes. Lines before the first header are ignored, as are messages whose
// trimmed content is empty.
func ParseText(text string, opts ParseOptions) []RawMessage {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var (
		out  []RawMessage
		cur  *RawMessage
		body []string
	)
	flush := func() {
		if cur == nil {
			return
		}
		if content := strings.TrimSpace(strings.Join(body, "\n")); content != "" {
			cur.Content = content
			out = append(out, *cur)
		}
		cur, body = nil, nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if sender, ts, ok := matchHeader(line, opts.Now); ok {
			flush()
			cur = &RawMessage{Sender: sender, Time: ts}
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()
	return out
}

// matchHeader reports whether line opens a message, returning the display
// sender and the message time.
func matchHeader(line string, now time.Time) (string, time.Time, bool) {
	narrow := strings.TrimSpace(width.Narrow.String(line))
	m := headerRe.FindStringSubmatch(narrow)
	if m == nil {
		return "", time.Time{}, false
	}
	ts, ok := parseHeaderTime(m[2], now)
	if !ok {
		return "", time.Time{}, false
	}
	sender := stripSenderID(m[1])
	if sender == "" {
		return "", time.Time{}, false
	}
	return sender, ts, true
}

func parseHeaderTime(s string, now time.Time) (time.Time, bool) {
	loc := now.Location()
	s = strings.Join(strings.Fields(s), " ")
	s = strings.NewReplacer("/", "-", ".", "-", "T", " ").Replace(s)

	switch {
	case len(s) >= 10 && s[4] == '-':
		for _, layout := range []string{"2006-1-2 15:04:05", "2006-1-2 15:04"} {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	case strings.Contains(s, " "):
		for _, layout := range []string{"1-2 15:04:05", "1-2 15:04"} {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
			}
		}
	default:
		if t, err := time.ParseInLocation("15:04:05", s, loc); err == nil {
			y, mo, d := now.Date()
			return time.Date(y, mo, d, t.Hour(), t.Minute(), t.Second(), 0, loc), true
		}
	}
	return time.Time{}, false
}

// stripSenderID removes a trailing parenthesized id: "Alice(wxid_1)" -> "Alice".
func stripSenderID(sender string) string {
	sender = strings.TrimSpace(width.Narrow.String(sender))
	if stripped := strings.TrimSpace(idRe.ReplaceAllString(sender, "")); stripped != "" {
		return stripped
	}
	return sender
}
