package transcript

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// decodeBody converts a non-UTF-8 body to UTF-8 using the charset named in
// contentType. Bodies without a usable charset are assumed to be GB18030,
// the superset the chatlog service falls back to on Chinese Windows hosts.
// Valid UTF-8 is returned unchanged.
func decodeBody(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return body
	}
	enc := encodingFor(contentType)
	if enc == nil {
		return body
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return body
	}
	return out
}

func encodingFor(contentType string) encoding.Encoding {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = strings.ToLower(strings.TrimSpace(params["charset"]))
	}
	switch charset {
	case "gb2312", "gbk":
		return simplifiedchinese.GBK
	case "", "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "utf-8", "utf8":
		return nil
	default:
		return simplifiedchinese.GB18030
	}
}
