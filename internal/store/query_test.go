package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryTerms_SplitsOnNonAlphanumerics(t *testing.T) {
	// Given: a query with punctuation, mixed case and a repeat
	query := "Milk, eggs & MILK!! (2024)"

	// When: tokenizing
	terms := QueryTerms(query)

	// Then: terms are lowercased, deduplicated and in first-seen order
	assert.Equal(t, []string{"milk", "eggs", "2024"}, terms)
}

func TestQueryTerms_KeepsUnicodeLetters(t *testing.T) {
	terms := QueryTerms("Überweisung café-Rechnung")
	assert.Equal(t, []string{"überweisung", "café", "rechnung"}, terms)
}

func TestQueryTerms_PunctuationOnly(t *testing.T) {
	assert.Empty(t, QueryTerms(" -- !! ?? "))
	assert.Empty(t, QueryTerms(""))
}

func TestQueryTerms_NoOperatorSyntax(t *testing.T) {
	// Quotes, wildcards and boolean words are not operators.
	terms := QueryTerms(`"tomato seedlings" budget AND NOT plan*`)

	assert.Equal(t, []string{"tomato", "seedlings", "budget", "and", "not", "plan"}, terms)
	assert.Equal(t, `"tomato"* OR "seedlings"* OR "budget"* OR "and"* OR "not"* OR "plan"*`, MatchExpression(terms))
}

func TestIsPrefixTerm(t *testing.T) {
	assert.False(t, IsPrefixTerm("an"))
	assert.True(t, IsPrefixTerm("and"))
	// Runes, not bytes
	assert.False(t, IsPrefixTerm("éé"))
}

func TestMatchExpression(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{"single prefix", []string{"milk"}, `"milk"*`},
		{"short term exact", []string{"an"}, `"an"`},
		{"or joined", []string{"milk", "an", "eggs"}, `"milk"* OR "an" OR "eggs"*`},
		{"empty terms dropped", []string{"", "milk"}, `"milk"*`},
		{"nothing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchExpression(tt.terms))
		})
	}
}

func TestChunkID_Stable(t *testing.T) {
	// Given: the same note and sequence
	a := ChunkID("note-1", 0)
	b := ChunkID("note-1", 0)

	// Then: IDs match and are valid UUIDs
	assert.Equal(t, a, b)
	assert.True(t, validRow("test", a, "note-1"))

	// And: different positions or notes differ
	assert.NotEqual(t, a, ChunkID("note-1", 1))
	assert.NotEqual(t, a, ChunkID("note-2", 0))
}

func TestValidRow_RejectsBadIdentifiers(t *testing.T) {
	assert.False(t, validRow("test", "not-a-uuid", "note-1"))
	assert.False(t, validRow("test", ChunkID("n", 0), ""))
}
