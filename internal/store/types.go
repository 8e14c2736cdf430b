// Package store holds the backing stores behind the lexical and vector
// indexes. Every store replaces a note's chunk set as one unit so readers
// never see a note half-updated.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by any operation on a closed store.
var ErrClosed = errors.New("store is closed")

// Chunk is one indexed window of a note's text.
type Chunk struct {
	ID     string // name-based UUID, see ChunkID
	NoteID string
	Text   string

	// Embedding is nil when none could be produced. Vector stores skip
	// such chunks.
	Embedding []float32

	// Sequence is the window's position in the note. Informational only.
	Sequence int
}

// NoteChunks is the complete chunk set of one note. Storing a NoteChunks
// with no chunks removes the note.
type NoteChunks struct {
	NoteID string
	Chunks []Chunk
}

// Source tags which index produced a hit.
type Source string

const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
)

// Hit is a single search result. Score scales differ per Source: lexical
// hits carry -bm25 (higher is better), vector hits carry cosine similarity.
type Hit struct {
	ID        string  `json:"id"`
	NoteID    string  `json:"note_id"`
	ChunkText string  `json:"chunk_text"`
	Score     float64 `json:"score"`
	Source    Source  `json:"source"`
}

// Stats summarizes store contents.
type Stats struct {
	Chunks int `json:"chunks"`
	Notes  int `json:"notes"`
}

// LexicalStore is a ranked full-text store over chunk text.
type LexicalStore interface {
	// Replace atomically swaps the stored chunks of every listed note.
	// Notes not listed are untouched.
	Replace(ctx context.Context, notes []NoteChunks) error

	// DeleteNote removes all chunks of a note. Deleting an unknown note is
	// not an error.
	DeleteNote(ctx context.Context, noteID string) error

	// DropAll removes every chunk and leaves the store usable.
	DropAll(ctx context.Context) error

	// Search OR-combines terms (see QueryTerms), prefix-matching terms of
	// MinPrefixLen runes or more, and returns at most limit hits by
	// descending relevance.
	Search(ctx context.Context, terms []string, limit int) ([]Hit, error)

	CountNote(ctx context.Context, noteID string) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// VectorStore is a cosine-similarity store over unit-length chunk
// embeddings.
type VectorStore interface {
	// Replace atomically swaps the stored chunks of every listed note.
	// Chunks without an embedding of the store's dimensions are skipped.
	Replace(ctx context.Context, notes []NoteChunks) error

	DeleteNote(ctx context.Context, noteID string) error
	DropAll(ctx context.Context) error

	// Search returns at most limit hits in non-increasing score order.
	Search(ctx context.Context, query []float32, limit int) ([]Hit, error)

	CountNote(ctx context.Context, noteID string) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Dimensions() int
	Close() error
}

// ErrDimensionMismatch is returned when a vector has the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
