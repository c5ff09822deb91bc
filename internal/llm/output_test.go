package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const doc = "<!DOCTYPE html>\n<html><head><title>r</title></head><body><p>ok</p></body></html>"

func TestFencedDocumentWithProse(t *testing.T) {
	raw := "这里是代码：\n```html\n" + doc + "\n```\nas requested"

	trimmed := TrimScaffolding(raw)
	shape := ClassifyOutput(trimmed)
	assert.Equal(t, ShapeFencedDocument, shape)

	got := FormatOutput(trimmed, shape, "title")
	assert.True(t, strings.HasPrefix(got, "<!DOCTYPE html>"), got)
	assert.True(t, strings.HasSuffix(got, "</html>"), got)
	assert.NotContains(t, got, "这里是代码")
	assert.NotContains(t, got, "as requested")
	assert.NotContains(t, got, "```")
}

func TestPlainTextWrappedInShell(t *testing.T) {
	raw := "今天群里主要讨论了发布计划。\n张三负责测试。"

	shape := ClassifyOutput(TrimScaffolding(raw))
	assert.Equal(t, ShapePlainText, shape)

	got := FormatOutput(raw, shape, "产品群 群聊分析报告")
	assert.True(t, strings.HasPrefix(got, "<!DOCTYPE html>"))
	assert.Contains(t, got, `<div class="report-content">`)
	assert.Contains(t, got, `<pre class="report-text">`+raw+`</pre>`)
	assert.Contains(t, got, "<title>产品群 群聊分析报告</title>")
}

func TestPlainTextIsEscaped(t *testing.T) {
	got := FormatOutput("a < b && c", ShapePlainText, "t")
	assert.Contains(t, got, "a &lt; b &amp;&amp; c")
}

func TestTrimScaffolding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lead-in and trailer around document", "Sure! Here is the report:\n" + doc + "\nLet me know if you need changes.", doc},
		{"bare document", "  " + doc + "  ", doc},
		{"html without doctype", "intro <html><body>x</body></html> outro", "<html><body>x</body></html>"},
		{"plain text untouched", "  just text  ", "just text"},
		{"fence kept for classifier", "Here:\n```html\n" + doc + "\n```\nbye", "```html\n" + doc + "\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimScaffolding(tt.in))
		})
	}
}

func TestClassifyOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Shape
	}{
		{"full document", doc, ShapeFullDocument},
		{"lowercase doctype", "<!doctype html><html></html>", ShapeFullDocument},
		{"html root", "<html><body></body></html>", ShapeFullDocument},
		{"fenced document", "```html\n" + doc + "\n```", ShapeFencedDocument},
		{"fenced without lang", "```\n" + doc + "\n```", ShapeFencedDocument},
		{"partial", "<h2>话题</h2><ul><li>发布</li></ul>", ShapePartialHTML},
		{"fenced partial", "```html\n<div>x</div>\n```", ShapePartialHTML},
		{"plain", "总结：一切正常", ShapePlainText},
		{"comparison is not markup", "a < b, c > d", ShapePlainText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOutput(tt.in))
		})
	}
}

func TestFormatOutput_PartialKeepsMarkup(t *testing.T) {
	got := FormatOutput("```html\n<h2>话题</h2>\n```", ShapePartialHTML, "t")
	assert.Contains(t, got, "<h2>话题</h2>")
	assert.NotContains(t, got, "```")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(got), "</html>"))
}

func TestFormatOutput_FullDocumentVerbatim(t *testing.T) {
	assert.Equal(t, doc, FormatOutput(doc, ShapeFullDocument, "t"))
}

func TestFailurePage(t *testing.T) {
	got := FailurePage("r", UserMessage(KindTimeout))
	assert.Contains(t, got, "分析失败")
	assert.Contains(t, got, UserMessage(KindTimeout))
}
