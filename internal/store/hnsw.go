package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig configures HNSWVectorStore.
type HNSWConfig struct {
	Dimensions int
	// M is the maximum neighbors per node.
	M int `yaml:"m"`
	// EfSearch is the candidate list size during search.
	EfSearch int `yaml:"ef_search"`
	// CompactRatio triggers a graph rebuild once lazily deleted nodes
	// exceed this share of the graph.
	CompactRatio float64 `yaml:"compact_ratio"`
	// Path persists the graph on Close. Empty keeps it in memory only.
	Path string `yaml:"-"`
}

// minOrphansToCompact keeps small graphs from being rebuilt on every edit.
const minOrphansToCompact = 64

// HNSWVectorStore is an approximate vector store on coder/hnsw.
//
// Deletion is lazy: a replaced chunk's node stays in the graph but loses
// its entry, and search skips it. Search over-fetches by the orphan count
// and re-scores candidates by exact dot product.
type HNSWVectorStore struct {
	cfg HNSWConfig

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	entries map[uint64]*hnswEntry
	notes   map[string][]uint64
	nextKey uint64
	closed  bool
}

var _ VectorStore = (*HNSWVectorStore)(nil)

type hnswEntry struct {
	ChunkID string
	NoteID  string
	Text    string
	Seq     int
	Vector  []float32
}

type hnswMetadata struct {
	Dimensions int
	NextKey    uint64
	Entries    map[uint64]*hnswEntry
}

// NewHNSWVectorStore creates the store, loading a persisted graph from
// cfg.Path when one exists. An unreadable or mismatched file is logged and
// replaced by an empty graph.
func NewHNSWVectorStore(cfg HNSWConfig) (*HNSWVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.CompactRatio <= 0 {
		cfg.CompactRatio = 0.3
	}

	s := &HNSWVectorStore{cfg: cfg}
	s.reset()

	if cfg.Path != "" {
		if err := s.load(); err != nil && !os.IsNotExist(err) {
			slog.Warn("hnsw_load_failed",
				slog.String("path", cfg.Path),
				slog.String("error", err.Error()))
			s.reset()
		}
	}
	return s, nil
}

func (s *HNSWVectorStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.cfg.M
	g.EfSearch = s.cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (s *HNSWVectorStore) reset() {
	s.graph = s.newGraph()
	s.entries = make(map[uint64]*hnswEntry)
	s.notes = make(map[string][]uint64)
	s.nextKey = 0
}

func (s *HNSWVectorStore) Replace(_ context.Context, notes []NoteChunks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for _, n := range notes {
		s.dropNoteLocked(n.NoteID)

		var keys []uint64
		for _, c := range n.Chunks {
			if !usableEmbedding(c, s.cfg.Dimensions) {
				continue
			}
			key := s.nextKey
			s.nextKey++

			vec := append([]float32(nil), c.Embedding...)
			s.graph.Add(hnsw.MakeNode(key, vec))
			s.entries[key] = &hnswEntry{
				ChunkID: c.ID,
				NoteID:  n.NoteID,
				Text:    c.Text,
				Seq:     c.Sequence,
				Vector:  vec,
			}
			keys = append(keys, key)
		}
		if len(keys) > 0 {
			s.notes[n.NoteID] = keys
		}
	}

	s.maybeCompactLocked()
	return nil
}

// dropNoteLocked orphans the note's nodes.
func (s *HNSWVectorStore) dropNoteLocked(noteID string) {
	for _, key := range s.notes[noteID] {
		delete(s.entries, key)
	}
	delete(s.notes, noteID)
}

func (s *HNSWVectorStore) orphansLocked() int {
	return s.graph.Len() - len(s.entries)
}

// maybeCompactLocked rebuilds the graph from live entries once orphans
// dominate it.
func (s *HNSWVectorStore) maybeCompactLocked() {
	orphans := s.orphansLocked()
	if orphans < minOrphansToCompact || float64(orphans) < s.cfg.CompactRatio*float64(s.graph.Len()) {
		return
	}
	s.rebuildLocked()
	slog.Debug("hnsw_compacted",
		slog.Int("removed_orphans", orphans),
		slog.Int("nodes", s.graph.Len()))
}

func (s *HNSWVectorStore) rebuildLocked() {
	g := s.newGraph()
	for key, e := range s.entries {
		g.Add(hnsw.MakeNode(key, e.Vector))
	}
	s.graph = g
}

func (s *HNSWVectorStore) DeleteNote(ctx context.Context, noteID string) error {
	return s.Replace(ctx, []NoteChunks{{NoteID: noteID}})
}

func (s *HNSWVectorStore) DropAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.reset()
	return nil
}

func (s *HNSWVectorStore) Search(_ context.Context, q []float32, limit int) ([]Hit, error) {
	if err := checkQuery(q, s.cfg.Dimensions); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.entries) == 0 || limit <= 0 {
		return []Hit{}, nil
	}

	n := s.graph.Len()
	k := min(min(limit, n)+s.orphansLocked(), n)

	top := newTopK(limit)
	for _, node := range s.graph.Search(q, k) {
		e, ok := s.entries[node.Key]
		if !ok {
			continue
		}
		top.push(Hit{
			ID:        e.ChunkID,
			NoteID:    e.NoteID,
			ChunkText: e.Text,
			Score:     dot(q, e.Vector),
			Source:    SourceVector,
		})
	}
	return top.sorted(), nil
}

func (s *HNSWVectorStore) CountNote(_ context.Context, noteID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.notes[noteID]), nil
}

func (s *HNSWVectorStore) Stats(context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}
	return Stats{Chunks: len(s.entries), Notes: len(s.notes)}, nil
}

// GraphStats reports live entries and graph nodes, including orphans.
func (s *HNSWVectorStore) GraphStats() (live, nodes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0
	}
	return len(s.entries), s.graph.Len()
}

func (s *HNSWVectorStore) Dimensions() int { return s.cfg.Dimensions }

// Save writes the graph and its entries next to cfg.Path using
// temp-file-and-rename. A no-op for in-memory stores.
func (s *HNSWVectorStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.saveLocked()
}

func (s *HNSWVectorStore) saveLocked() error {
	if s.cfg.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := writeAtomic(s.cfg.Path, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	meta := hnswMetadata{
		Dimensions: s.cfg.Dimensions,
		NextKey:    s.nextKey,
		Entries:    s.entries,
	}
	if err := writeAtomic(s.cfg.Path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (s *HNSWVectorStore) load() error {
	mf, err := os.Open(s.cfg.Path + ".meta")
	if err != nil {
		return err
	}
	defer mf.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Dimensions != s.cfg.Dimensions {
		return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: meta.Dimensions}
	}

	gf, err := os.Open(s.cfg.Path)
	if err != nil {
		return err
	}
	defer gf.Close()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.nextKey = meta.NextKey
	for key, e := range meta.Entries {
		if e == nil || !validRow("hnsw", e.ChunkID, e.NoteID) {
			continue
		}
		s.entries[key] = e
		s.notes[e.NoteID] = append(s.notes[e.NoteID], key)
	}
	if s.orphansLocked() > 0 {
		s.rebuildLocked()
	}

	slog.Debug("hnsw_loaded",
		slog.String("path", s.cfg.Path),
		slog.Int("chunks", len(s.entries)))
	return nil
}

// Close persists the graph (if a path is set) and releases it.
func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.saveLocked()
	s.closed = true
	s.graph = nil
	s.entries = nil
	s.notes = nil
	return err
}
