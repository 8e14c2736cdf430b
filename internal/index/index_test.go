package index

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Aman-CERP/amannotes/internal/chunk"
	"github.com/Aman-CERP/amannotes/internal/embed"
	"github.com/Aman-CERP/amannotes/internal/embed/mocks"
	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/store"
)

const testDims = 64

var scenarioNotes = []Note{
	{ID: "n1", Text: "Buy milk and eggs"},
	{ID: "n2", Text: "Quarterly budget review meeting"},
}

func newChunker(t *testing.T, maxChars int) *chunk.Chunker {
	t.Helper()
	c, err := chunk.New(maxChars)
	require.NoError(t, err)
	return c
}

func newLexicalIndex(t *testing.T) *LexicalIndex {
	t.Helper()
	s, err := store.NewSQLiteLexicalStore("")
	require.NoError(t, err)
	l := NewLexicalIndex(s, newChunker(t, 200))
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newVectorIndex(t *testing.T, e embed.Embedder) *VectorIndex {
	t.Helper()
	v, err := NewVectorIndex(store.NewFlatVectorStore(testDims), newChunker(t, 200), embed.NewProvider(e, testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func noteIDs(hits []SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.NoteID
	}
	return out
}

func TestLexicalIndex_Scenario(t *testing.T) {
	// Given: the two scenario notes
	l := newLexicalIndex(t)
	ctx := context.Background()
	require.NoError(t, l.ReindexBulk(ctx, scenarioNotes))

	tests := []struct {
		query string
		want  []string
	}{
		{"milk", []string{"n1"}},
		{"budget", []string{"n2"}},
		{"notes", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			// When: searching
			hits, err := l.Search(ctx, tt.query, 5)

			// Then: only the matching note comes back
			require.NoError(t, err)
			assert.Equal(t, tt.want, noteIDs(hits))
		})
	}
}

func TestLexicalIndex_ReindexIsIdempotent(t *testing.T) {
	// Given: a note long enough to span several chunks
	l := newLexicalIndex(t)
	l.chunker = newChunker(t, 20)
	ctx := context.Background()
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"

	// When: reindexing it twice with the same text
	require.NoError(t, l.Reindex(ctx, "n", text))
	first, err := l.CountNote(ctx, "n")
	require.NoError(t, err)
	require.NoError(t, l.Reindex(ctx, "n", text))
	second, err := l.CountNote(ctx, "n")
	require.NoError(t, err)

	// Then: the chunk count does not grow
	assert.Greater(t, first, 1)
	assert.Equal(t, first, second)

	hits, err := l.Search(ctx, "juliet", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, noteIDs(hits))
}

func TestLexicalIndex_ReindexReplacesOldText(t *testing.T) {
	l := newLexicalIndex(t)
	ctx := context.Background()

	require.NoError(t, l.Reindex(ctx, "n", "remember the milk"))
	require.NoError(t, l.Reindex(ctx, "n", "remember the bread"))

	hits, err := l.Search(ctx, "milk", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalIndex_BlankTextAndDeleteRemoveNote(t *testing.T) {
	l := newLexicalIndex(t)
	ctx := context.Background()
	require.NoError(t, l.ReindexBulk(ctx, scenarioNotes))

	// Blank text leaves zero chunks
	require.NoError(t, l.Reindex(ctx, "n1", "  \n\t "))
	n, err := l.CountNote(ctx, "n1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Delete is idempotent
	require.NoError(t, l.Delete(ctx, "n2"))
	require.NoError(t, l.Delete(ctx, "n2"))
	hits, err := l.Search(ctx, "budget", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalIndex_RejectsEmptyNoteID(t *testing.T) {
	l := newLexicalIndex(t)

	err := l.Reindex(context.Background(), " ", "text")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeInvalidNoteID, amerrors.GetCode(err))
}

func TestLexicalIndex_QueryWithoutTerms(t *testing.T) {
	l := newLexicalIndex(t)
	require.NoError(t, l.ReindexBulk(context.Background(), scenarioNotes))

	hits, err := l.Search(context.Background(), "?! --", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_SearchRanksClosestNoteFirst(t *testing.T) {
	// Given: the scenario notes embedded with the static embedder
	v := newVectorIndex(t, embed.NewStaticEmbedder(testDims))
	ctx := context.Background()
	require.NoError(t, v.ReindexBulk(ctx, scenarioNotes))

	// When: searching for a word of the first note
	hits, err := v.Search(ctx, "milk", 5)

	// Then: that note ranks first and scores never increase
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "n1", hits[0].NoteID)
	assert.Equal(t, store.SourceVector, hits[0].Source)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestVectorIndex_DeleteRemovesVectors(t *testing.T) {
	v := newVectorIndex(t, embed.NewStaticEmbedder(testDims))
	ctx := context.Background()
	require.NoError(t, v.ReindexBulk(ctx, scenarioNotes))

	require.NoError(t, v.Delete(ctx, "n1"))

	n, err := v.CountNote(ctx, "n1")
	require.NoError(t, err)
	assert.Zero(t, n)
	hits, err := v.Search(ctx, "milk", 5)
	require.NoError(t, err)
	assert.NotContains(t, noteIDs(hits), "n1")
}

func TestVectorIndex_WithoutEmbedderStoresNothing(t *testing.T) {
	// Given: a provider with no embedder
	s := store.NewFlatVectorStore(testDims)
	v, err := NewVectorIndex(s, newChunker(t, 200), embed.NewProvider(nil, testDims))
	require.NoError(t, err)
	ctx := context.Background()

	// When: reindexing and searching
	require.NoError(t, v.ReindexBulk(ctx, scenarioNotes))
	hits, err := v.Search(ctx, "milk", 5)

	// Then: nothing is stored and search quietly returns nothing
	require.NoError(t, err)
	assert.Empty(t, hits)
	stats, err := v.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

func TestVectorIndex_EmbedderFailureSkipsChunks(t *testing.T) {
	// Given: an embedder that always fails
	ctrl := gomock.NewController(t)
	m := mocks.NewMockEmbedder(ctrl)
	m.EXPECT().ModelName().Return("broken").AnyTimes()
	m.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(nil, assert.AnError).AnyTimes()
	m.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, assert.AnError).AnyTimes()
	m.EXPECT().Close().Return(nil).AnyTimes()
	v := newVectorIndex(t, m)
	ctx := context.Background()

	// When: indexing a note
	require.NoError(t, v.Reindex(ctx, "n1", "Buy milk and eggs"))

	// Then: the note has no vectors and search returns nothing
	n, err := v.CountNote(ctx, "n1")
	require.NoError(t, err)
	assert.Zero(t, n)
	hits, err := v.Search(ctx, "milk", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNewVectorIndex_DimensionMismatch(t *testing.T) {
	_, err := NewVectorIndex(store.NewFlatVectorStore(8), newChunker(t, 10), embed.NewProvider(nil, 16))

	var mismatch store.ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 8, mismatch.Expected)
}

func TestBuildChunks_StableIDs(t *testing.T) {
	c := newChunker(t, 10)
	n := Note{ID: "n", Text: strings.Repeat("word ", 10)}

	first := buildChunks(c, n)
	second := buildChunks(c, n)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	for i, ch := range first {
		assert.Equal(t, store.ChunkID("n", i), ch.ID)
		assert.LessOrEqual(t, len([]rune(ch.Text)), 10)
	}
}
