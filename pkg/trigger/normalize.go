// Package trigger implements the reply engine: phrase normalization,
// word-boundary matching against a user's trigger list, and the humanized
// reply sequence driven off incoming messages.
package trigger

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes text for matching: control characters are
// stripped, the rest is lowercased and trimmed. Stored phrases and incoming
// message text go through the same function so comparison is symmetric.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSpace(b.String())
}
