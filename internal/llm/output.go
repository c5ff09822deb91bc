package llm

import (
	"bytes"
	"html"
	"html/template"
	"regexp"
	"strings"
)

// Shape classifies raw model output.
type Shape string

const (
	ShapeFullDocument   Shape = "full_document"
	ShapeFencedDocument Shape = "fenced_document"
	ShapePartialHTML    Shape = "partial_html"
	ShapePlainText      Shape = "plain_text"
)

var (
	fenceOpenRe  = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*$")
	fenceCloseRe = regexp.MustCompile("(?m)^[ \t]*```[ \t]*$")
	htmlTagRe    = regexp.MustCompile(`(?i)</?(html|head|body|div|p|h[1-6]|ul|ol|li|table|thead|tbody|tr|td|th|span|strong|em|b|i|br|hr|section|article|header|footer|main|style|a|img|pre|code|blockquote)\b[^>]*>`)
)

// TrimScaffolding removes prose a model wraps around its markup: lead-in
// sentences before a fenced block or document, and anything after the
// closing fence or the last </html>. Output with neither is returned
// trimmed.
func TrimScaffolding(text string) string {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))

	if open := fenceOpenRe.FindStringIndex(text); open != nil {
		body := text[open[1]:]
		if isDocumentStart(body) {
			rest := text[open[0]:]
			if end := closingFence(rest); end > 0 {
				return strings.TrimSpace(rest[:end])
			}
			return strings.TrimSpace(rest)
		}
	}

	lower := strings.ToLower(text)
	start := strings.Index(lower, "<!doctype html")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	if start < 0 {
		return text
	}
	text, lower = text[start:], lower[start:]
	if end := strings.LastIndex(lower, "</html>"); end >= 0 {
		text = text[:end+len("</html>")]
	}
	return strings.TrimSpace(text)
}

// closingFence returns the end offset (just past the closing ```) of the
// fenced block that starts s, or -1.
func closingFence(s string) int {
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return -1
	}
	loc := fenceCloseRe.FindStringIndex(s[nl+1:])
	if loc == nil {
		return -1
	}
	return nl + 1 + loc[1]
}

func isDocumentStart(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html")
}

// fenceContent returns the body of a fenced block starting s.
func fenceContent(s string) (string, bool) {
	open := fenceOpenRe.FindStringIndex(s)
	if open == nil || strings.TrimSpace(s[:open[0]]) != "" {
		return "", false
	}
	body := s[open[1]:]
	if loc := fenceCloseRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return strings.TrimSpace(body), true
}

// ClassifyOutput decides how trimmed model output becomes a report:
// a document used as-is, a fenced document to extract, partial markup to
// wrap, or plain text to escape and wrap.
func ClassifyOutput(text string) Shape {
	text = strings.TrimSpace(text)
	if isDocumentStart(text) {
		return ShapeFullDocument
	}
	if body, ok := fenceContent(text); ok {
		if isDocumentStart(body) {
			return ShapeFencedDocument
		}
		text = body
	}
	if htmlTagRe.MatchString(text) {
		return ShapePartialHTML
	}
	return ShapePlainText
}

// FormatOutput renders text of the given shape as a complete HTML document.
func FormatOutput(text string, shape Shape, title string) string {
	text = strings.TrimSpace(text)
	switch shape {
	case ShapeFullDocument:
		return text
	case ShapeFencedDocument:
		if body, ok := fenceContent(text); ok {
			return body
		}
		return text
	case ShapePartialHTML:
		if body, ok := fenceContent(text); ok {
			text = body
		}
		return Shell(title, template.HTML(text))
	default:
		return Shell(title, template.HTML(`<pre class="report-text">`+html.EscapeString(text)+`</pre>`))
	}
}

var shellTmpl = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{margin:0;background:#f5f6f8;color:#1f2329;font-family:-apple-system,BlinkMacSystemFont,"PingFang SC","Microsoft YaHei",sans-serif;line-height:1.6}
.report{max-width:960px;margin:24px auto;padding:24px 32px;background:#fff;border-radius:8px;box-shadow:0 1px 4px rgba(0,0,0,.08)}
.report h1{font-size:22px;margin:0 0 16px}
.report-text{white-space:pre-wrap;word-break:break-word;font-family:inherit;margin:0}
.report-error{padding:12px 16px;border-left:4px solid #d93026;background:#fdecea}
</style>
</head>
<body>
<div class="report">
<h1>{{.Title}}</h1>
<div class="report-content">
{{.Content}}
</div>
</div>
</body>
</html>
`))

// Shell wraps content in the standard report page. content is inserted
// without escaping.
func Shell(title string, content template.HTML) string {
	var buf bytes.Buffer
	if err := shellTmpl.Execute(&buf, struct {
		Title   string
		Content template.HTML
	}{title, content}); err != nil {
		return string(content)
	}
	return buf.String()
}

// FailurePage renders the report written for a room whose analysis failed.
func FailurePage(title, message string) string {
	return Shell(title, template.HTML(
		`<div class="report-error"><strong>分析失败</strong><p>`+html.EscapeString(message)+`</p></div>`))
}

// ReportTitle is the page title for a room's report.
func ReportTitle(room string) string {
	return room + " 群聊分析报告"
}
