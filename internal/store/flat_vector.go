package store

import (
	"context"
	"sync"
)

// FlatVectorStore is an exact in-memory vector store. Search scans every
// stored chunk and keeps the top k in a heap, which is fast enough for a
// personal corpus of tens of thousands of chunks.
type FlatVectorStore struct {
	dims int

	mu     sync.RWMutex
	notes  map[string][]Chunk
	closed bool
}

var _ VectorStore = (*FlatVectorStore)(nil)

func NewFlatVectorStore(dims int) *FlatVectorStore {
	return &FlatVectorStore{
		dims:  dims,
		notes: make(map[string][]Chunk),
	}
}

// Replace swaps note chunk sets under the write lock, so readers see
// either the old or the new set.
func (s *FlatVectorStore) Replace(_ context.Context, notes []NoteChunks) error {
	staged := make(map[string][]Chunk, len(notes))
	for _, n := range notes {
		kept := make([]Chunk, 0, len(n.Chunks))
		for _, c := range n.Chunks {
			if !usableEmbedding(c, s.dims) {
				continue
			}
			c.Embedding = append([]float32(nil), c.Embedding...)
			c.NoteID = n.NoteID
			kept = append(kept, c)
		}
		staged[n.NoteID] = kept
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for id, chunks := range staged {
		if len(chunks) == 0 {
			delete(s.notes, id)
			continue
		}
		s.notes[id] = chunks
	}
	return nil
}

func (s *FlatVectorStore) DeleteNote(ctx context.Context, noteID string) error {
	return s.Replace(ctx, []NoteChunks{{NoteID: noteID}})
}

func (s *FlatVectorStore) DropAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.notes = make(map[string][]Chunk)
	return nil
}

func (s *FlatVectorStore) Search(ctx context.Context, q []float32, limit int) ([]Hit, error) {
	if err := checkQuery(q, s.dims); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	top := newTopK(limit)
	for _, chunks := range s.notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, c := range chunks {
			top.push(Hit{
				ID:        c.ID,
				NoteID:    c.NoteID,
				ChunkText: c.Text,
				Score:     dot(q, c.Embedding),
				Source:    SourceVector,
			})
		}
	}
	return top.sorted(), nil
}

func (s *FlatVectorStore) CountNote(_ context.Context, noteID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.notes[noteID]), nil
}

func (s *FlatVectorStore) Stats(context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}
	st := Stats{Notes: len(s.notes)}
	for _, chunks := range s.notes {
		st.Chunks += len(chunks)
	}
	return st, nil
}

func (s *FlatVectorStore) Dimensions() int { return s.dims }

func (s *FlatVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.notes = nil
	return nil
}
