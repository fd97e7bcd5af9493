package store

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTermLen drops single-character noise terms.
const minTermLen = 2

// charsPerToken approximates subword tokenizer density for English prose.
const charsPerToken = 4

// textToken is a lowercased search term with its byte span in the
// source text.
type textToken struct {
	Term  string
	Start int
	End   int
}

// tokenizeSpans scans text into lowercase terms with byte offsets.
// Words are runs of letters and digits; identifier mentions inside
// prose are split further at case changes, so "PinBudget" and
// "token_budget_max" match their parts. Terms shorter than minTermLen
// are dropped.
func tokenizeSpans(text string) []textToken {
	var tokens []textToken

	emit := func(start, end int) {
		term := strings.ToLower(text[start:end])
		if utf8.RuneCountInString(term) >= minTermLen {
			tokens = append(tokens, textToken{Term: term, Start: start, End: end})
		}
	}

	start := -1
	var prev rune
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next, _ := utf8.DecodeRuneInString(text[i+size:])

		switch {
		case !isWordRune(r):
			if start >= 0 {
				emit(start, i)
				start = -1
			}
		case start < 0:
			start = i
		case splitsWord(prev, r, next):
			emit(start, i)
			start = i
		}

		prev = r
		i += size
	}
	if start >= 0 {
		emit(start, len(text))
	}

	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// splitsWord reports a boundary before r inside a word: a lower-to-upper
// transition ("pinBudget") or the last capital of an acronym run
// ("HTTPServer" splits before "Server").
func splitsWord(prev, r, next rune) bool {
	if !unicode.IsUpper(r) {
		return false
	}
	return unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next))
}

// TokenizeText returns the lowercase search terms of text. Queries and
// indexed content go through the same rules so their terms line up.
func TokenizeText(text string) []string {
	spans := tokenizeSpans(text)
	if len(spans) == 0 {
		return nil
	}

	terms := make([]string, len(spans))
	for i, s := range spans {
		terms[i] = s.Term
	}
	return terms
}

// BuildStopWordMap converts a slice of stop words to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// EstimateTokens approximates the token count of text without a real
// tokenizer. Uses the larger of a character-based and a word-based
// estimate so both dense prose and whitespace-heavy text are bounded
// from above.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	charEstimate := (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
	wordEstimate := len(strings.Fields(text))

	if wordEstimate > charEstimate {
		return wordEstimate
	}
	if charEstimate == 0 {
		return 1
	}
	return charEstimate
}
