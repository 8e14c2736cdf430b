// Package index keeps the lexical and vector indexes consistent with note
// content and serves searches over both.
package index

import (
	"context"
	"strings"

	"github.com/Aman-CERP/amannotes/internal/chunk"
	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/store"
)

// Note is the unit the index consumes: an identifier and its plain text.
type Note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SearchHit is one ranked result.
type SearchHit = store.Hit

// Backend is one searchable index over note chunks.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string

	// Reindex replaces the note's chunks with those of text.
	Reindex(ctx context.Context, noteID, text string) error

	// ReindexBulk replaces the chunks of every supplied note in one write.
	// Other notes are untouched.
	ReindexBulk(ctx context.Context, notes []Note) error

	Delete(ctx context.Context, noteID string) error
	DropAll(ctx context.Context) error
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	CountNote(ctx context.Context, noteID string) (int, error)
	Stats(ctx context.Context) (store.Stats, error)
	Close() error
}

// ValidateNoteID rejects identifiers the stores cannot key rows by.
func ValidateNoteID(noteID string) error {
	if strings.TrimSpace(noteID) == "" {
		return amerrors.New(amerrors.ErrCodeInvalidNoteID, "note id is empty", nil)
	}
	return nil
}

// buildChunks splits a note into store chunks with stable IDs.
func buildChunks(c *chunk.Chunker, n Note) []store.Chunk {
	parts := c.Chunks(n.Text)
	chunks := make([]store.Chunk, 0, len(parts))
	for seq, text := range parts {
		chunks = append(chunks, store.Chunk{
			ID:       store.ChunkID(n.ID, seq),
			NoteID:   n.ID,
			Text:     text,
			Sequence: seq,
		})
	}
	return chunks
}

func validateNotes(notes []Note) error {
	for _, n := range notes {
		if err := ValidateNoteID(n.ID); err != nil {
			return err
		}
	}
	return nil
}
