package boundary

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPreviewSize caps a suggestion description in bytes.
var MaxPreviewSize = 4096

// SanitizePreview makes a description safe to put in front of a human:
// invalid UTF-8 becomes U+FFFD, control characters other than newline, tab
// and carriage return are dropped, and text beyond MaxPreviewSize is cut at
// a rune boundary and marked with an ellipsis.
func SanitizePreview(s string) string {
	s = strings.ToValidUTF8(s, "�")

	clean := true
	for _, r := range s {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if !clean {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if !unicode.IsControl(r) || isSafeControl(r) {
				b.WriteRune(r)
			}
		}
		s = b.String()
	}

	if len(s) <= MaxPreviewSize {
		return s
	}
	cut := MaxPreviewSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
