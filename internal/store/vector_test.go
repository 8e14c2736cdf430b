package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vectorFactory struct {
	name string
	open func(t *testing.T, dims int) VectorStore
}

func vectorBackends() []vectorFactory {
	return []vectorFactory{
		{"flat", func(t *testing.T, dims int) VectorStore {
			return NewFlatVectorStore(dims)
		}},
		{"hnsw", func(t *testing.T, dims int) VectorStore {
			s, err := NewHNSWVectorStore(HNSWConfig{Dimensions: dims})
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T, dims int) VectorStore {
			s, err := NewSQLiteVectorStore("", dims)
			require.NoError(t, err)
			return s
		}},
	}
}

func unit(v ...float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / n
	}
	return out
}

func embedded(noteID string, vecs ...[]float32) NoteChunks {
	nc := NoteChunks{NoteID: noteID}
	for i, v := range vecs {
		nc.Chunks = append(nc.Chunks, Chunk{
			ID:        ChunkID(noteID, i),
			NoteID:    noteID,
			Text:      noteID + " chunk",
			Embedding: v,
			Sequence:  i,
		})
	}
	return nc
}

func TestVectorStore_SearchOrdersBySimilarity(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			// Given: three notes pointing in different directions
			s := b.open(t, 3)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				embedded("x", unit(1, 0, 0)),
				embedded("xy", unit(1, 1, 0)),
				embedded("z", unit(0, 0, 1)),
			}))

			// When: querying close to x
			hits, err := s.Search(ctx, unit(1, 0.1, 0), 3)
			require.NoError(t, err)

			// Then: results come back most similar first
			require.Len(t, hits, 3)
			assert.Equal(t, []string{"x", "xy", "z"}, hitNotes(hits))
			assert.InDelta(t, 0.995, hits[0].Score, 0.01)
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
			}
			assert.Equal(t, SourceVector, hits[0].Source)
			assert.Equal(t, "x chunk", hits[0].ChunkText)
		})
	}
}

func TestVectorStore_LimitRespected(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, 2)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				embedded("a", unit(1, 0), unit(1, 1), unit(0, 1)),
			}))

			hits, err := s.Search(ctx, unit(1, 0), 2)
			require.NoError(t, err)
			assert.Len(t, hits, 2)

			hits, err = s.Search(ctx, unit(1, 0), 0)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestVectorStore_LimitLargerThanStore(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			// Given: a store with three chunks
			s := b.open(t, 2)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			require.NoError(t, s.Replace(ctx, []NoteChunks{
				embedded("a", unit(1, 0), unit(1, 1), unit(0, 1)),
			}))

			// When: asking for far more hits than exist
			hits, err := s.Search(ctx, unit(1, 0), 1<<40)

			// Then: every chunk comes back without sizing anything by the limit
			require.NoError(t, err)
			assert.Len(t, hits, 3)
		})
	}
}

func TestVectorStore_SkipsChunksWithoutUsableEmbedding(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, 2)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			// Given: one good chunk, one missing and one wrong-sized embedding
			nc := embedded("n1", unit(1, 0), nil, unit(1, 0, 0))
			require.NoError(t, s.Replace(ctx, []NoteChunks{nc}))

			// Then: only the good chunk is stored
			n, err := s.CountNote(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestVectorStore_QueryDimensionMismatch(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, 3)
			defer func() { _ = s.Close() }()

			_, err := s.Search(context.Background(), unit(1, 0), 5)

			var dimErr ErrDimensionMismatch
			require.ErrorAs(t, err, &dimErr)
			assert.Equal(t, 3, dimErr.Expected)
			assert.Equal(t, 2, dimErr.Got)
		})
	}
}

func TestVectorStore_ReplaceAndDelete(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, 2)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{
				embedded("a", unit(1, 0), unit(0.9, 0.1)),
				embedded("b", unit(0, 1)),
			}))

			// When: note a is replaced with a single chunk
			require.NoError(t, s.Replace(ctx, []NoteChunks{embedded("a", unit(0.5, 0.5))}))

			// Then: counts reflect the new chunk set
			n, err := s.CountNote(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Chunks: 2, Notes: 2}, st)

			// When: note b is deleted
			require.NoError(t, s.DeleteNote(ctx, "b"))

			// Then: it no longer appears in results
			hits, err := s.Search(ctx, unit(0, 1), 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, hitNotes(hits))
		})
	}
}

func TestVectorStore_DropAll(t *testing.T) {
	for _, b := range vectorBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, 2)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			require.NoError(t, s.Replace(ctx, []NoteChunks{embedded("a", unit(1, 0))}))
			require.NoError(t, s.DropAll(ctx))

			hits, err := s.Search(ctx, unit(1, 0), 10)
			require.NoError(t, err)
			assert.Empty(t, hits)

			require.NoError(t, s.Replace(ctx, []NoteChunks{embedded("b", unit(1, 0))}))
			hits, err = s.Search(ctx, unit(1, 0), 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, hitNotes(hits))
		})
	}
}

func TestHNSWVectorStore_PersistsOnClose(t *testing.T) {
	// Given: a file-backed graph with two notes
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s, err := NewHNSWVectorStore(HNSWConfig{Dimensions: 2, Path: path})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, []NoteChunks{
		embedded("a", unit(1, 0)),
		embedded("b", unit(0, 1)),
	}))
	require.NoError(t, s.Close())

	// When: reopening
	s, err = NewHNSWVectorStore(HNSWConfig{Dimensions: 2, Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: both notes are found
	hits, err := s.Search(ctx, unit(1, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hitNotes(hits))
}

func TestHNSWVectorStore_DimensionChangeStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s, err := NewHNSWVectorStore(HNSWConfig{Dimensions: 2, Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Replace(context.Background(), []NoteChunks{embedded("a", unit(1, 0))}))
	require.NoError(t, s.Close())

	// When: reopened with different dimensions
	s, err = NewHNSWVectorStore(HNSWConfig{Dimensions: 3, Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the old graph is discarded
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Chunks)
}

func TestHNSWVectorStore_CompactsOrphans(t *testing.T) {
	// Given: a store that rewrites one note many times
	s, err := NewHNSWVectorStore(HNSWConfig{Dimensions: 2})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	for i := 0; i < minOrphansToCompact*2; i++ {
		angle := float64(i) / 10
		v := unit(float32(math.Cos(angle)), float32(math.Sin(angle)))
		require.NoError(t, s.Replace(ctx, []NoteChunks{embedded("a", v)}))
	}

	// Then: orphaned nodes were reclaimed
	live, nodes := s.GraphStats()
	assert.Equal(t, 1, live)
	assert.Less(t, nodes, minOrphansToCompact*2)

	// And: the live chunk is still searchable
	hits, err := s.Search(ctx, unit(1, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, hitNotes(hits))
}

func TestSQLiteVectorStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := NewSQLiteVectorStore(path, 2)
	require.NoError(t, err)
	require.NoError(t, s.Replace(context.Background(), []NoteChunks{embedded("a", unit(1, 0))}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteVectorStore(path, 2)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hits, err := s.Search(context.Background(), unit(1, 0), 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestSQLiteVectorStore_SkipsRowsOfOtherDimensions(t *testing.T) {
	// Given: a database written with 2 dimensions
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := NewSQLiteVectorStore(path, 2)
	require.NoError(t, err)
	require.NoError(t, s.Replace(context.Background(), []NoteChunks{embedded("a", unit(1, 0))}))
	require.NoError(t, s.Close())

	// When: opened as a 3-dimensional store
	s, err = NewSQLiteVectorStore(path, 3)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the old rows are skipped instead of failing the search
	hits, err := s.Search(context.Background(), unit(1, 0, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTopK_KeepsHighestScores(t *testing.T) {
	top := newTopK(2)
	for i, score := range []float64{0.1, 0.9, 0.5, 0.7} {
		top.push(Hit{ID: ChunkID("n", i), Score: score})
	}

	got := top.sorted()
	require.Len(t, got, 2)
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, 0.7, got[1].Score)
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := decodeVector(encodeVector(v), 3)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector(encodeVector(v), 4)
	assert.Error(t, err)
}

func TestNewVectorStore_Validation(t *testing.T) {
	_, err := NewVectorStore(VectorOptions{Backend: VectorFlat})
	assert.Error(t, err)

	_, err = NewVectorStore(VectorOptions{Backend: "pinecone", Dimensions: 4})
	assert.Error(t, err)

	s, err := NewVectorStore(VectorOptions{Dimensions: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Dimensions())
	assert.NoError(t, s.Close())
}
