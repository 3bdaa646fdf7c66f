package service

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	repeatedSpaces   = regexp.MustCompile(` {2,}`)
	spaceAroundBreak = regexp.MustCompile(` ?\n ?`)
	extraBlankLines  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText canonicalizes raw input before chunking so that break
// offsets are computed on a stable string. Line endings become LF,
// horizontal whitespace collapses to one space, blank-line runs collapse to
// a single paragraph break and the result is trimmed.
func NormalizeText(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	s = repeatedSpaces.ReplaceAllString(s, " ")
	s = spaceAroundBreak.ReplaceAllString(s, "\n")
	s = extraBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
