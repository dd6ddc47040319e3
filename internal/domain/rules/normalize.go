package rules

import (
	"regexp"
	"strings"
	"unicode"
)

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases, trims and collapses whitespace. It is the cache key form of a message.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return spaceRun.ReplaceAllString(text, " ")
}

func stripPunctuation(text string) string {
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
	})
}

// WordList matches any of its entries as whole words (or whole phrases) case-insensitively.
type WordList struct {
	re *regexp.Regexp
}

func NewWordList(words []string) WordList {
	parts := make([]string, 0, len(words))
	for _, word := range words {
		word = Normalize(word)
		if word == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(word))
	}
	if len(parts) == 0 {
		return WordList{}
	}
	return WordList{re: regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])(` + strings.Join(parts, "|") + `)($|[^\p{L}\p{N}])`)}
}

func (w WordList) Match(text string) bool {
	if w.re == nil {
		return false
	}
	return w.re.MatchString(Normalize(text))
}

func (w WordList) Empty() bool {
	return w.re == nil
}
