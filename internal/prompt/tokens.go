package prompt

import "unicode"

// EstimateTokens approximates the token count of text as
// ceil(1.5*CJK + LatinWords + 0.5*otherSymbols). CJK covers Han, Hiragana,
// Katakana, and Hangul; a Latin word is a maximal run of ASCII letters and
// digits; whitespace is free. The figure is for budgeting only.
func EstimateTokens(text string) int {
	var cjk, words, symbols int
	inWord := false
	for _, r := range text {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if !inWord {
				words++
				inWord = true
			}
			continue
		case isCJK(r):
			cjk++
		case unicode.IsSpace(r):
		default:
			symbols++
		}
		inWord = false
	}
	// Doubled to stay in integers: 3*cjk + 2*words + symbols, halved, rounded up.
	return (3*cjk + 2*words + symbols + 1) / 2
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
