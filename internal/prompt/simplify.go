package prompt

import (
	"regexp"
	"strings"
)

var (
	fillerRe = regexp.MustCompile(`(?i)\b(very|extremely|really|highly|truly|incredibly|absolutely)\s+|非常|十分|特别|极其|尤其|务必|一定要|详细地|认真地|仔细地`)

	reminderPrefixes = []string{
		"注意", "请注意", "提醒", "温馨提示", "重要提示", "再次强调", "切记",
		"note:", "remember", "reminder", "important:", "please note",
	}

	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// SimplifyPrompt shortens an oversized system prompt: it removes filler
// adverbs, drops reminder lines, and collapses runs of blank lines.
func SimplifyPrompt(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isReminder(line) {
			continue
		}
		line = fillerRe.ReplaceAllString(line, "")
		out = append(out, strings.TrimRight(line, " \t"))
	}
	joined := blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(joined)
}

func isReminder(line string) bool {
	t := strings.ToLower(strings.TrimSpace(line))
	t = strings.TrimLeft(t, "-*#>•·⚠️！! ")
	for _, p := range reminderPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}
