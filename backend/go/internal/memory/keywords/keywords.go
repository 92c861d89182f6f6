// Package keywords holds the lightweight lexical helpers used for fact
// deduplication and relevance narrowing.
package keywords

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"your": {}, "with": {}, "this": {}, "that": {}, "have": {}, "has": {}, "was": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "how": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "will": {}, "about": {}, "from": {},
	"into": {}, "they": {}, "them": {}, "their": {}, "there": {}, "then": {}, "than": {},
	"our": {}, "out": {}, "any": {}, "all": {}, "its": {}, "it's": {}, "does": {}, "did": {},
	"yes": {}, "please": {}, "tell": {}, "know": {}, "want": {}, "need": {}, "like": {},
}

// Extract returns the distinct lowercase content words of text in first-seen order.
// Words shorter than three runes and stopwords are dropped; digits are kept.
func Extract(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len([]rune(f)) < 3 && !isNumber(f) {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Overlap counts how many of words occur in text or match one of tags. Comparison is case-insensitive.
func Overlap(words []string, text string, tags []string) int {
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	n := 0
	for _, w := range words {
		if _, ok := tagSet[w]; ok || strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// ContainsEitherFold reports whether a contains b or b contains a, ignoring case
// and surrounding whitespace. Empty strings never match.
func ContainsEitherFold(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
