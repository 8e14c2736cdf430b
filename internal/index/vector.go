package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amannotes/internal/chunk"
	"github.com/Aman-CERP/amannotes/internal/embed"
	"github.com/Aman-CERP/amannotes/internal/store"
)

// VectorIndex is semantic search over embedded note chunks. Chunks the
// provider cannot embed are left out.
type VectorIndex struct {
	store    store.VectorStore
	chunker  *chunk.Chunker
	provider *embed.Provider
}

// NewVectorIndex creates a vector index. The provider's dimensions must
// match the store's.
func NewVectorIndex(s store.VectorStore, c *chunk.Chunker, p *embed.Provider) (*VectorIndex, error) {
	if p.Dimensions() != s.Dimensions() {
		return nil, store.ErrDimensionMismatch{Expected: s.Dimensions(), Got: p.Dimensions()}
	}
	return &VectorIndex{store: s, chunker: c, provider: p}, nil
}

// Name implements Backend.
func (v *VectorIndex) Name() string { return string(store.SourceVector) }

// Reindex replaces the note's vectors with those of text.
func (v *VectorIndex) Reindex(ctx context.Context, noteID, text string) error {
	return v.ReindexBulk(ctx, []Note{{ID: noteID, Text: text}})
}

// ReindexBulk embeds every chunk of the supplied notes in one provider
// batch, then swaps the notes' vectors in one write. A note whose chunks
// could not be embedded ends up with no vectors.
func (v *VectorIndex) ReindexBulk(ctx context.Context, notes []Note) error {
	if err := validateNotes(notes); err != nil {
		return err
	}

	sets := make([]store.NoteChunks, 0, len(notes))
	var texts []string
	for _, n := range notes {
		chunks := buildChunks(v.chunker, n)
		for _, c := range chunks {
			texts = append(texts, c.Text)
		}
		sets = append(sets, store.NoteChunks{NoteID: n.ID, Chunks: chunks})
	}

	vecs := v.provider.EmbedBatch(ctx, texts)
	i := 0
	for s := range sets {
		for c := range sets[s].Chunks {
			sets[s].Chunks[c].Embedding = vecs[i]
			i++
		}
	}

	if err := v.store.Replace(ctx, sets); err != nil {
		return fmt.Errorf("vector replace: %w", err)
	}
	return nil
}

// Delete removes all vectors of the note.
func (v *VectorIndex) Delete(ctx context.Context, noteID string) error {
	if err := ValidateNoteID(noteID); err != nil {
		return err
	}
	return v.store.DeleteNote(ctx, noteID)
}

// DropAll removes every vector.
func (v *VectorIndex) DropAll(ctx context.Context) error {
	return v.store.DropAll(ctx)
}

// Search embeds query and returns the limit most similar chunks. When the
// query cannot be embedded it returns nothing.
func (v *VectorIndex) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	q, ok := v.provider.Embed(ctx, query)
	if !ok {
		return nil, nil
	}
	return v.store.Search(ctx, q, limit)
}

// CountNote returns the number of vectors held for a note.
func (v *VectorIndex) CountNote(ctx context.Context, noteID string) (int, error) {
	return v.store.CountNote(ctx, noteID)
}

// Stats implements Backend.
func (v *VectorIndex) Stats(ctx context.Context) (store.Stats, error) {
	return v.store.Stats(ctx)
}

// Provider returns the embedding provider.
func (v *VectorIndex) Provider() *embed.Provider { return v.provider }

// Close closes the store and the provider.
func (v *VectorIndex) Close() error {
	return errors.Join(v.store.Close(), v.provider.Close())
}
