package extract

import (
	"strings"
	"unicode/utf8"
)

// truncate cuts s to at most max bytes at the nearest paragraph, sentence or
// word boundary, in that order of preference. It never cuts mid-word or
// mid-rune. The second return value reports whether anything was cut.
func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}

	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}

	// Paragraph boundary closest to the limit, as long as it keeps at least
	// half the budget.
	if i := strings.LastIndex(cut, "\n\n"); i >= max/2 {
		return strings.TrimRight(cut[:i], "\n "), true
	}

	// Sentence boundary.
	if i := lastSentenceEnd(cut); i >= max/2 {
		return strings.TrimSpace(cut[:i+1]), true
	}

	// Word boundary.
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		return strings.TrimSpace(cut[:i]), true
	}

	// A single unbroken token longer than the whole budget; nothing better to
	// cut at.
	return cut, true
}

// lastSentenceEnd returns the index of the last sentence terminator in s that
// is followed by whitespace or the cut point, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if i == len(s)-1 || isSpaceByte(s[i+1]) {
				return i
			}
		}
	}
	return -1
}
