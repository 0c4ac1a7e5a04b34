package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyfleet/replyfleet/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercases", input: "HeLLo", expected: "hello"},
		{name: "trims whitespace", input: "  hi there  ", expected: "hi there"},
		{name: "strips control characters", input: "h\x00i\x07 there", expected: "hi there"},
		{name: "keeps newlines and tabs", input: "hi\nthere\tnow", expected: "hi\nthere\tnow"},
		{name: "empty", input: "", expected: ""},
		{name: "unicode lowercase", input: "ПРИВЕТ", expected: "привет"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "simple words", input: "hi there", expected: []string{"hi", "there"}},
		{name: "punctuation separates", input: "hi, there! now", expected: []string{"hi", "there", "now"}},
		{name: "underscore is word rune", input: "snake_case here", expected: []string{"snake_case", "here"}},
		{name: "digits", input: "order 66", expected: []string{"order", "66"}},
		{name: "empty", input: "", expected: nil},
		{name: "only punctuation", input: "?!...", expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func triggerList(phrases ...string) []models.Trigger {
	triggers := make([]models.Trigger, len(phrases))
	for i, p := range phrases {
		triggers[i] = models.Trigger{
			ID:        int64(i + 1),
			Phrase:    p,
			ReplyBody: "reply to " + p,
			Active:    true,
		}
	}
	return triggers
}

func TestFirstMatch_WordBoundary(t *testing.T) {
	triggers := triggerList("hi")

	tests := []struct {
		name    string
		text    string
		matches bool
	}{
		{name: "exact word", text: "hi", matches: true},
		{name: "leading word with more text", text: "hi bro, long time", matches: true},
		{name: "not at message start", text: "oh hi there", matches: false},
		{name: "prefix of longer word", text: "history rhymes", matches: false},
		{name: "prefix of longer word alone", text: "hiya folks", matches: false},
		{name: "interior of word", text: "this is it", matches: false},
		{name: "punctuation after word", text: "hi!", matches: true},
		{name: "case insensitive", text: "HI THERE", matches: true},
		{name: "empty text", text: "", matches: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := FirstMatch(triggers, tt.text)
			if tt.matches {
				require.NotNil(t, match)
			} else {
				assert.Nil(t, match)
			}
		})
	}
}

func TestFirstMatch_WholeWordsOnly(t *testing.T) {
	// "his" must not fire inside "this" or at the start of "history": the
	// phrase has to equal the leading word, not merely prefix it.
	triggers := triggerList("his")
	assert.Nil(t, FirstMatch(triggers, "this is fine"))
	assert.Nil(t, FirstMatch(triggers, "history"))
	assert.NotNil(t, FirstMatch(triggers, "his idea"))
}

func TestFirstMatch_MultiWordPhrase(t *testing.T) {
	triggers := triggerList("good morning")

	assert.NotNil(t, FirstMatch(triggers, "good morning everyone"))
	assert.NotNil(t, FirstMatch(triggers, "Good Morning!"))
	// The phrase must lead the message and every word must match whole.
	assert.Nil(t, FirstMatch(triggers, "a very good morning"))
	assert.Nil(t, FirstMatch(triggers, "good mornings"))
	assert.Nil(t, FirstMatch(triggers, "goodish morning"))
	assert.Nil(t, FirstMatch(triggers, "good evening"))
	assert.Nil(t, FirstMatch(triggers, "morning good"))
	assert.Nil(t, FirstMatch(triggers, "good"))
}

func TestFirstMatch_FirstInListOrderWins(t *testing.T) {
	triggers := triggerList("hello", "hell")

	match := FirstMatch(triggers, "hell no")
	require.NotNil(t, match)
	// "hello" does not match "hell"; the second trigger fires.
	assert.Equal(t, int64(2), match.ID)

	// A shorter phrase earlier in the list shadows a longer one: both match
	// "hi bro, long time" but insertion order decides.
	triggers = triggerList("hi", "hi bro")
	match = FirstMatch(triggers, "hi bro, long time")
	require.NotNil(t, match)
	assert.Equal(t, int64(1), match.ID)
}

func TestFirstMatch_SkipsInactiveAndEmptyReply(t *testing.T) {
	triggers := []models.Trigger{
		{ID: 1, Phrase: "hi", ReplyBody: "yo", Active: false},
		{ID: 2, Phrase: "hi", ReplyBody: "", Active: true},
		{ID: 3, Phrase: "hi", ReplyBody: "hey", Active: true},
	}
	match := FirstMatch(triggers, "hi")
	require.NotNil(t, match)
	assert.Equal(t, int64(3), match.ID)
}

func TestFirstMatch_NormalizesPhrase(t *testing.T) {
	triggers := []models.Trigger{
		{ID: 1, Phrase: "  PRICE  ", ReplyBody: "the price list", Active: true},
	}
	require.NotNil(t, FirstMatch(triggers, "Price, please?"))
}
