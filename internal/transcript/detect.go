package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Format names the response shape a parse attempt recognized.
type Format string

const (
	FormatJSONArray   Format = "json-array"
	FormatJSONWrapped Format = "json-wrapped"
	FormatText        Format = "text"
	FormatCSV         Format = "csv"
	FormatJSONString  Format = "json-string"
)

// ParseResult is the tagged outcome of one parse attempt: either Parsed
// (OK set, Messages possibly empty) or Unrecognized.
type ParseResult struct {
	OK       bool
	Format   Format
	Messages []RawMessage
}

func unrecognized() ParseResult { return ParseResult{} }

func parsed(f Format, msgs []RawMessage) ParseResult {
	return ParseResult{OK: true, Format: f, Messages: msgs}
}

// ParseOptions carries context the parsers need to date messages.
type ParseOptions struct {
	// Now dates transcript headers that carry only a time of day, and
	// supplies the year for month-day headers.
	Now time.Time
}

type parseAttempt func(body []byte, opts ParseOptions) ParseResult

// attempts is the detection order; the first Parsed result wins.
// parseJSONString unwraps a string literal and retries innerAttempts.
var (
	innerAttempts = []parseAttempt{
		parseJSONArray,
		parseJSONWrapped,
		parseTextTranscript,
		parseCSV,
	}
	attempts = []parseAttempt{
		parseJSONArray,
		parseJSONWrapped,
		parseTextTranscript,
		parseCSV,
		parseJSONString,
	}
)

// Parse runs the detection attempts in order and returns the first
// recognized result, or an Unrecognized result if none matched.
func Parse(body []byte, opts ParseOptions) ParseResult {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	body = bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(body) == 0 {
		return unrecognized()
	}
	for _, attempt := range attempts {
		if res := attempt(body, opts); res.OK {
			return res
		}
	}
	return unrecognized()
}

var (
	senderKeys  = []string{"sender", "senderName", "sender_name", "talker", "talkerName", "nickname", "nickName", "from", "user", "userName", "name"}
	contentKeys = []string{"content", "text", "message", "msg", "body"}
	timeKeys    = []string{"time", "timestamp", "createTime", "create_time", "ts", "date", "datetime", "sendTime"}
	wrapperKeys = []string{"data", "messages", "items", "list", "records", "result", "chatlog"}
)

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func parseJSONArray(body []byte, _ ParseOptions) ParseResult {
	if body[0] != '[' {
		return unrecognized()
	}
	var items []any
	if err := decodeJSON(body, &items); err != nil {
		return unrecognized()
	}
	msgs, ok := messagesFromArray(items)
	if !ok {
		return unrecognized()
	}
	return parsed(FormatJSONArray, msgs)
}

func parseJSONWrapped(body []byte, _ ParseOptions) ParseResult {
	if body[0] != '{' {
		return unrecognized()
	}
	var obj map[string]any
	if err := decodeJSON(body, &obj); err != nil {
		return unrecognized()
	}
	if msgs, ok := messagesFromWrapper(obj, 0); ok {
		return parsed(FormatJSONWrapped, msgs)
	}
	return unrecognized()
}

// messagesFromWrapper looks for a known wrapper key holding an array, one
// level of nesting deep ({"data": {"items": [...]}}).
func messagesFromWrapper(obj map[string]any, depth int) ([]RawMessage, bool) {
	for _, key := range wrapperKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch inner := v.(type) {
		case []any:
			if msgs, ok := messagesFromArray(inner); ok {
				return msgs, true
			}
		case map[string]any:
			if depth == 0 {
				if msgs, ok := messagesFromWrapper(inner, depth+1); ok {
					return msgs, true
				}
			}
		}
	}
	return nil, false
}

// messagesFromArray accepts an empty array or one where at least one element
// is message-like. Non-message elements are skipped.
func messagesFromArray(items []any) ([]RawMessage, bool) {
	msgs := make([]RawMessage, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if m, ok := messageFromObject(obj); ok {
			msgs = append(msgs, m)
		}
	}
	if len(items) > 0 && len(msgs) == 0 {
		return nil, false
	}
	return msgs, true
}

func messageFromObject(obj map[string]any) (RawMessage, bool) {
	content, ok := firstString(obj, contentKeys)
	if !ok {
		return RawMessage{}, false
	}
	sender, _ := firstString(obj, senderKeys)
	var ts any
	for _, k := range timeKeys {
		if v, ok := obj[k]; ok && v != nil {
			ts = v
			break
		}
	}
	return RawMessage{Sender: stripSenderID(sender), Content: strings.TrimSpace(content), Time: ts}, true
}

func firstString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			return s, true
		case json.Number:
			return s.String(), true
		case map[string]any:
			// {"sender": {"name": "..."}}
			if name, ok := firstString(s, []string{"name", "nickname", "displayName"}); ok {
				return name, true
			}
		}
	}
	return "", false
}

// parseJSONString handles a body that is a JSON string literal wrapping
// another payload. The inner value is run through the other attempts.
func parseJSONString(body []byte, opts ParseOptions) ParseResult {
	if body[0] != '"' {
		return unrecognized()
	}
	var inner string
	if err := json.Unmarshal(body, &inner); err != nil {
		return unrecognized()
	}
	innerBody := bytes.TrimSpace([]byte(inner))
	if len(innerBody) == 0 {
		return unrecognized()
	}
	for _, attempt := range innerAttempts {
		if res := attempt(innerBody, opts); res.OK {
			res.Format = FormatJSONString
			return res
		}
	}
	return unrecognized()
}
