package transcript

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
)

var (
	csvSenderCols  = []string{"sender", "sendername", "talker", "nickname", "from", "user", "name", "发送者", "发送人", "昵称"}
	csvContentCols = []string{"content", "text", "message", "msg", "内容", "消息"}
	csvTimeCols    = []string{"time", "timestamp", "createtime", "date", "datetime", "时间"}
)

func looksLikeCSVHeader(line string) bool {
	if !strings.Contains(line, ",") {
		return false
	}
	cols := splitHeader(line)
	return columnIndex(cols, csvContentCols) >= 0
}

func splitHeader(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.Trim(strings.TrimSpace(p), `"`))
	}
	return parts
}

func columnIndex(cols, names []string) int {
	for _, name := range names {
		for i, c := range cols {
			if c == name {
				return i
			}
		}
	}
	return -1
}

// parseCSV accepts CSV whose header row names at least a content column.
func parseCSV(body []byte, _ ParseOptions) ParseResult {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil || len(header) < 2 {
		return unrecognized()
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	contentIdx := columnIndex(header, csvContentCols)
	if contentIdx < 0 {
		return unrecognized()
	}
	senderIdx := columnIndex(header, csvSenderCols)
	timeIdx := columnIndex(header, csvTimeCols)

	var msgs []RawMessage
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return unrecognized()
		}
		content := strings.TrimSpace(field(rec, contentIdx))
		if content == "" {
			continue
		}
		var ts any
		if v := field(rec, timeIdx); v != "" {
			ts = v
		}
		msgs = append(msgs, RawMessage{
			Sender:  stripSenderID(field(rec, senderIdx)),
			Content: content,
			Time:    ts,
		})
	}
	return parsed(FormatCSV, msgs)
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}
