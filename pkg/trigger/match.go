package trigger

import (
	"unicode"

	"github.com/replyfleet/replyfleet/pkg/models"
)

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Tokenize splits normalized text into word runs. A word is a maximal run
// of letters, digits, and underscores; everything else is a separator.
func Tokenize(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// matchesPhrase reports whether the message words start with the phrase
// words. Every phrase word must equal the message word at the same
// position, so "hi" fires on "hi there" but never on "history" or
// mid-message ("oh hi"), and "good morning" never fires on "good mornings".
func matchesPhrase(words []string, phrase string) bool {
	parts := Tokenize(phrase)
	if len(parts) == 0 || len(parts) > len(words) {
		return false
	}
	for i, p := range parts {
		if words[i] != p {
			return false
		}
	}
	return true
}

// FirstMatch scans triggers in list order and returns the first active one
// whose phrase is a leading word sequence of the message text. Inactive
// triggers and triggers with an empty reply are skipped. Returns nil when
// nothing matches.
func FirstMatch(triggers []models.Trigger, text string) *models.Trigger {
	words := Tokenize(Normalize(text))
	if len(words) == 0 {
		return nil
	}
	for i := range triggers {
		t := &triggers[i]
		if !t.Active || t.ReplyBody == "" {
			continue
		}
		phrase := Normalize(t.Phrase)
		if phrase == "" {
			continue
		}
		if matchesPhrase(words, phrase) {
			return t
		}
	}
	return nil
}
