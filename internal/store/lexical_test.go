package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lexicalFactory struct {
	name string
	open func(t *testing.T) LexicalStore
}

func lexicalBackends() []lexicalFactory {
	return []lexicalFactory{
		{"sqlite", func(t *testing.T) LexicalStore {
			s, err := NewSQLiteLexicalStore("")
			require.NoError(t, err)
			return s
		}},
		{"bleve", func(t *testing.T) LexicalStore {
			s, err := NewBleveLexicalStore("")
			require.NoError(t, err)
			return s
		}},
	}
}

func noteChunks(noteID string, texts ...string) NoteChunks {
	nc := NoteChunks{NoteID: noteID}
	for i, text := range texts {
		nc.Chunks = append(nc.Chunks, Chunk{
			ID:       ChunkID(noteID, i),
			NoteID:   noteID,
			Text:     text,
			Sequence: i,
		})
	}
	return nc
}

func hitNotes(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.NoteID
	}
	return out
}

func TestLexicalStore_SearchFindsMatchingNote(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			// Given: two notes
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("groceries", "Buy milk and eggs"),
				noteChunks("work", "Quarterly budget review"),
			}))

			// When: searching for a word in one note
			hits, err := s.Search(ctx, QueryTerms("MILK"), 10)
			require.NoError(t, err)

			// Then: only that note is returned, tagged lexical
			require.Len(t, hits, 1)
			assert.Equal(t, "groceries", hits[0].NoteID)
			assert.Equal(t, ChunkID("groceries", 0), hits[0].ID)
			assert.Equal(t, "Buy milk and eggs", hits[0].ChunkText)
			assert.Equal(t, SourceLexical, hits[0].Source)
		})
	}
}

func TestLexicalStore_PrefixOnlyForLongTerms(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("groceries", "Buy milk and eggs"),
				noteChunks("work", "Quarterly budget review"),
			}))

			// When: a three-rune term is a prefix of an indexed word
			hits, err := s.Search(ctx, []string{"bud"}, 10)
			require.NoError(t, err)

			// Then: it matches
			assert.Equal(t, []string{"work"}, hitNotes(hits))

			// When: a two-rune term is a prefix of "and"
			hits, err = s.Search(ctx, []string{"an"}, 10)
			require.NoError(t, err)

			// Then: it only matches whole words, so nothing comes back
			assert.Empty(t, hits)
		})
	}
}

func TestLexicalStore_TermsAreORed(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("groceries", "Buy milk and eggs"),
				noteChunks("work", "Quarterly budget review"),
				noteChunks("travel", "Book train tickets"),
			}))

			hits, err := s.Search(ctx, QueryTerms("milk budget"), 10)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"groceries", "work"}, hitNotes(hits))
		})
	}
}

func TestLexicalStore_HigherTermFrequencyRanksFirst(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("weak", "milk with bread cheese eggs butter and jam"),
				noteChunks("strong", "milk milk"),
			}))

			hits, err := s.Search(ctx, []string{"milk"}, 10)
			require.NoError(t, err)
			require.Len(t, hits, 2)

			// Then: scores are non-increasing, higher is better
			assert.Equal(t, "strong", hits[0].NoteID)
			assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		})
	}
}

func TestLexicalStore_ReplaceSwapsChunkSet(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			// Given: a note with three chunks
			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("n1", "alpha one", "alpha two", "alpha three"),
			}))
			n, err := s.CountNote(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			// When: it is replaced by one chunk with different text
			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("n1", "omega"),
			}))

			// Then: old text is gone and only the new chunk is stored
			n, err = s.CountNote(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			hits, err := s.Search(ctx, []string{"alpha"}, 10)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = s.Search(ctx, []string{"omega"}, 10)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestLexicalStore_ReplaceIsIdempotent(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			nc := noteChunks("n1", "same text", "more text")
			require.NoError(t, s.Replace(ctx, []NoteChunks{nc}))
			require.NoError(t, s.Replace(ctx, []NoteChunks{nc}))

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Chunks: 2, Notes: 1}, st)
		})
	}
}

func TestLexicalStore_DeleteNote(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("groceries", "Buy milk"),
				noteChunks("dairy", "milk prices"),
			}))

			// When: deleting one note
			require.NoError(t, s.DeleteNote(ctx, "groceries"))

			// Then: only the other note still matches
			hits, err := s.Search(ctx, []string{"milk"}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"dairy"}, hitNotes(hits))

			// And: deleting an unknown note is fine
			assert.NoError(t, s.DeleteNote(ctx, "missing"))
		})
	}
}

func TestLexicalStore_LimitAndEmptyQuery(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			var notes []NoteChunks
			for i := 0; i < 5; i++ {
				notes = append(notes, noteChunks(fmt.Sprintf("n%d", i), "shared keyword here"))
			}
			require.NoError(t, s.Replace(ctx, notes))

			hits, err := s.Search(ctx, []string{"keyword"}, 2)
			require.NoError(t, err)
			assert.Len(t, hits, 2)

			hits, err = s.Search(ctx, nil, 10)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = s.Search(ctx, []string{"keyword"}, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestLexicalStore_LimitLargerThanStore(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			// Given: two matching notes
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("n1", "buy milk"),
				noteChunks("n2", "milk and bread"),
			}))

			// When: asking for far more hits than exist
			hits, err := s.Search(ctx, []string{"milk"}, 1<<40)

			// Then: both notes come back
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"n1", "n2"}, hitNotes(hits))
		})
	}
}

func TestLexicalStore_DropAllLeavesStoreUsable(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				noteChunks("a", "first"), noteChunks("b", "second"),
			}))

			// When: dropping everything
			require.NoError(t, s.DropAll(ctx))

			// Then: the store is empty
			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{}, st)

			// And: still accepts writes
			require.NoError(t, s.Replace(ctx, []NoteChunks{noteChunks("c", "third")}))
			hits, err := s.Search(ctx, []string{"third"}, 10)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestLexicalStore_ClosedStoreErrors(t *testing.T) {
	for _, b := range lexicalBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			require.NoError(t, s.Close())

			_, err := s.Search(context.Background(), []string{"x"}, 10)
			assert.ErrorIs(t, err, ErrClosed)

			// Close is idempotent
			assert.NoError(t, s.Close())
		})
	}
}

func TestSQLiteLexicalStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a file-backed store with one note
	path := filepath.Join(t.TempDir(), "lexical.db")
	s, err := NewSQLiteLexicalStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Replace(context.Background(), []NoteChunks{noteChunks("n1", "persistent text")}))
	require.NoError(t, s.Close())

	// When: reopening
	s, err = NewSQLiteLexicalStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the note is still searchable
	hits, err := s.Search(context.Background(), []string{"persistent"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, hitNotes(hits))
}

func TestBleveLexicalStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.bleve")
	s, err := NewBleveLexicalStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Replace(context.Background(), []NoteChunks{noteChunks("n1", "persistent text")}))
	require.NoError(t, s.Close())

	s, err = NewBleveLexicalStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hits, err := s.Search(context.Background(), []string{"persistent"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, hitNotes(hits))
}

func TestNewLexicalStore_UnknownBackend(t *testing.T) {
	_, err := NewLexicalStore("elastic", "")
	assert.Error(t, err)
}
