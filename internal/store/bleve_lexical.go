package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	notesAnalyzerName = "notes_text"
	bleveFieldNote    = "note_id"
	bleveFieldContent = "content"
	blevePageSize     = 1000
)

// BleveLexicalStore implements LexicalStore on a bleve index. Each chunk
// is one document keyed by chunk ID; a note's replacement is applied as a
// single bleve batch.
type BleveLexicalStore struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalStore = (*BleveLexicalStore)(nil)

type bleveChunk struct {
	NoteID  string `json:"note_id"`
	Content string `json:"content"`
	Seq     int    `json:"seq"`
}

// NewBleveLexicalStore opens (or creates) a bleve index at path. An empty
// path gives an in-memory index.
func NewBleveLexicalStore(path string) (*BleveLexicalStore, error) {
	idx, err := openBleve(path)
	if err != nil {
		return nil, err
	}
	return &BleveLexicalStore{index: idx, path: path}, nil
}

func notesMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(notesAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     bleveunicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = notesAnalyzerName
	content.Store = true

	note := bleve.NewKeywordFieldMapping()
	note.Store = true

	seq := bleve.NewNumericFieldMapping()
	seq.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(bleveFieldContent, content)
	doc.AddFieldMappingsAt(bleveFieldNote, note)
	doc.AddFieldMappingsAt("seq", seq)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = notesAnalyzerName
	return im, nil
}

func openBleve(path string) (bleve.Index, error) {
	im, err := notesMapping()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return bleve.NewMemOnly(im)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	if validErr := validateBleveDir(path); validErr != nil {
		slog.Warn("lexical_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case err == nil:
		return idx, nil
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, im)
	case isBleveCorruption(err):
		slog.Warn("lexical_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, im)
	default:
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
}

// validateBleveDir checks index_meta.json of an existing index.
func validateBleveDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

func (b *BleveLexicalStore) Replace(ctx context.Context, notes []NoteChunks) error {
	if len(notes) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, n := range notes {
		old, err := b.noteDocIDs(ctx, n.NoteID)
		if err != nil {
			return err
		}
		for _, id := range old {
			batch.Delete(id)
		}
		for _, c := range n.Chunks {
			doc := bleveChunk{NoteID: n.NoteID, Content: c.Text, Seq: c.Sequence}
			if err := batch.Index(c.ID, doc); err != nil {
				return fmt.Errorf("index chunk %s: %w", c.ID, err)
			}
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	return nil
}

// noteDocIDs lists the document IDs stored for a note.
func (b *BleveLexicalStore) noteDocIDs(ctx context.Context, noteID string) ([]string, error) {
	q := bleve.NewTermQuery(noteID)
	q.SetField(bleveFieldNote)

	var ids []string
	err := b.scan(ctx, q, nil, func(h hitFields) {
		ids = append(ids, h.id)
	})
	return ids, err
}

type hitFields struct {
	id     string
	fields map[string]interface{}
}

// scan pages through every match of q.
func (b *BleveLexicalStore) scan(ctx context.Context, q query.Query, fields []string, fn func(hitFields)) error {
	for from := 0; ; from += blevePageSize {
		req := bleve.NewSearchRequestOptions(q, blevePageSize, from, false)
		req.Fields = fields
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		for _, h := range res.Hits {
			fn(hitFields{id: h.ID, fields: h.Fields})
		}
		if len(res.Hits) < blevePageSize {
			return nil
		}
	}
}

func (b *BleveLexicalStore) DeleteNote(ctx context.Context, noteID string) error {
	return b.Replace(ctx, []NoteChunks{{NoteID: noteID}})
}

// DropAll deletes every document in one batch, falling back to recreating
// the index when that fails.
func (b *BleveLexicalStore) DropAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	clearErr := b.clear(ctx)
	if clearErr == nil {
		return nil
	}
	slog.Warn("lexical_clear_failed",
		slog.String("path", b.path),
		slog.String("error", clearErr.Error()))

	_ = b.index.Close()
	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("remove index after clear failure (%v): %w", clearErr, err)
		}
	}
	idx, err := openBleve(b.path)
	if err != nil {
		b.closed = true
		return fmt.Errorf("recreate index: %w", err)
	}
	b.index = idx
	slog.Info("lexical_schema_recreated", slog.String("path", b.path))
	return nil
}

func (b *BleveLexicalStore) clear(ctx context.Context) error {
	batch := b.index.NewBatch()
	err := b.scan(ctx, bleve.NewMatchAllQuery(), nil, func(h hitFields) {
		batch.Delete(h.id)
	})
	if err != nil {
		return err
	}
	if batch.Size() == 0 {
		return nil
	}
	return b.index.Batch(batch)
}

// Search builds a disjunction of prefix queries (terms of MinPrefixLen
// runes or more) and exact term queries over the content field.
func (b *BleveLexicalStore) Search(ctx context.Context, terms []string, limit int) ([]Hit, error) {
	if len(terms) == 0 || limit <= 0 {
		return []Hit{}, nil
	}

	disjuncts := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if IsPrefixTerm(t) {
			q := bleve.NewPrefixQuery(t)
			q.SetField(bleveFieldContent)
			disjuncts = append(disjuncts, q)
		} else {
			q := bleve.NewTermQuery(t)
			q.SetField(bleveFieldContent)
			disjuncts = append(disjuncts, q)
		}
	}
	if len(disjuncts) == 0 {
		return []Hit{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	if n, err := b.index.DocCount(); err == nil && uint64(limit) > n {
		limit = int(n)
	}
	if limit == 0 {
		return []Hit{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(disjuncts...), limit, 0, false)
	req.Fields = []string{bleveFieldNote, bleveFieldContent}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		noteID, _ := h.Fields[bleveFieldNote].(string)
		content, _ := h.Fields[bleveFieldContent].(string)
		if !validRow("bleve", h.ID, noteID) {
			continue
		}
		hits = append(hits, Hit{
			ID:        h.ID,
			NoteID:    noteID,
			ChunkText: content,
			Score:     h.Score,
			Source:    SourceLexical,
		})
	}
	return hits, nil
}

func (b *BleveLexicalStore) CountNote(ctx context.Context, noteID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}

	q := bleve.NewTermQuery(noteID)
	q.SetField(bleveFieldNote)
	res, err := b.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, 0, 0, false))
	if err != nil {
		return 0, fmt.Errorf("count note: %w", err)
	}
	return int(res.Total), nil
}

func (b *BleveLexicalStore) Stats(ctx context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Stats{}, ErrClosed
	}

	notes := make(map[string]struct{})
	var st Stats
	err := b.scan(ctx, bleve.NewMatchAllQuery(), []string{bleveFieldNote}, func(h hitFields) {
		st.Chunks++
		if id, ok := h.fields[bleveFieldNote].(string); ok {
			notes[id] = struct{}{}
		}
	})
	st.Notes = len(notes)
	return st, err
}

func (b *BleveLexicalStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
