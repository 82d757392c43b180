// Package textx provides the text normalization helpers shared by the
// normalize stage and ingress validation.
package textx

import (
	"regexp"
	"strings"
)

var (
	lineBreakRe  = regexp.MustCompile(`\r\n?`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
)

// UnifiedMarkdown canonicalizes extracted text into the markdown form the
// evaluation stage consumes: NUL bytes become spaces, CRLF/CR collapse to LF,
// runs of spaces and tabs collapse to one space, runs of three or more blank
// lines collapse to one blank line, and the result is trimmed.
func UnifiedMarkdown(raw string) string {
	s := strings.ReplaceAll(raw, "\x00", " ")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = trailingWSRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SanitizeText removes control characters except tab/newline/CR and trims
// surrounding space. Used on free-text ingress fields before persistence.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
