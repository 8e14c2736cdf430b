package store

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPrefixLen is the shortest term that gets a prefix wildcard.
const MinPrefixLen = 3

// QueryTerms splits a free-text query on every non-alphanumeric rune and
// lowercases the pieces. Duplicates are dropped, first occurrence wins.
func QueryTerms(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.ToLower(f)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// IsPrefixTerm reports whether a term is matched as a prefix.
func IsPrefixTerm(term string) bool {
	return utf8.RuneCountInString(term) >= MinPrefixLen
}

// MatchExpression renders terms as an FTS5 MATCH expression:
// "milk"* OR "an". Terms are alphanumeric, so quoting is enough to keep
// them out of the FTS5 query grammar.
func MatchExpression(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		p := `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
		if IsPrefixTerm(t) {
			p += "*"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " OR ")
}
