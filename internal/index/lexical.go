package index

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amannotes/internal/chunk"
	"github.com/Aman-CERP/amannotes/internal/store"
)

// LexicalIndex is ranked full-text search over note chunks.
type LexicalIndex struct {
	store   store.LexicalStore
	chunker *chunk.Chunker
}

// NewLexicalIndex creates a lexical index over s.
func NewLexicalIndex(s store.LexicalStore, c *chunk.Chunker) *LexicalIndex {
	return &LexicalIndex{store: s, chunker: c}
}

// Name implements Backend.
func (l *LexicalIndex) Name() string { return string(store.SourceLexical) }

// Reindex replaces the note's rows with the chunks of text. Blank text
// leaves the note with no rows.
func (l *LexicalIndex) Reindex(ctx context.Context, noteID, text string) error {
	return l.ReindexBulk(ctx, []Note{{ID: noteID, Text: text}})
}

// ReindexBulk replaces the rows of every supplied note in one transaction.
func (l *LexicalIndex) ReindexBulk(ctx context.Context, notes []Note) error {
	if err := validateNotes(notes); err != nil {
		return err
	}
	sets := make([]store.NoteChunks, 0, len(notes))
	for _, n := range notes {
		sets = append(sets, store.NoteChunks{NoteID: n.ID, Chunks: buildChunks(l.chunker, n)})
	}
	if err := l.store.Replace(ctx, sets); err != nil {
		return fmt.Errorf("lexical replace: %w", err)
	}
	return nil
}

// Delete removes all rows of the note.
func (l *LexicalIndex) Delete(ctx context.Context, noteID string) error {
	if err := ValidateNoteID(noteID); err != nil {
		return err
	}
	return l.store.DeleteNote(ctx, noteID)
}

// DropAll removes every row.
func (l *LexicalIndex) DropAll(ctx context.Context) error {
	return l.store.DropAll(ctx)
}

// Search tokenizes query and returns up to limit hits by relevance. A query
// with no terms returns nothing without touching the store.
func (l *LexicalIndex) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	terms := store.QueryTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	return l.store.Search(ctx, terms, limit)
}

// CountNote returns the number of rows held for a note.
func (l *LexicalIndex) CountNote(ctx context.Context, noteID string) (int, error) {
	return l.store.CountNote(ctx, noteID)
}

// Stats implements Backend.
func (l *LexicalIndex) Stats(ctx context.Context) (store.Stats, error) {
	return l.store.Stats(ctx)
}

// Close closes the underlying store.
func (l *LexicalIndex) Close() error {
	return l.store.Close()
}
