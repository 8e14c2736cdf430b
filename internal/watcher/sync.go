package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
)

// Indexer receives note mutations. *index.Coordinator satisfies it.
type Indexer interface {
	Reindex(noteID, text string)
	Delete(noteID string)
}

// Source reads notes from the notebook. *notes.Dir satisfies it.
type Source interface {
	Filter
	List(ctx context.Context) ([]index.Note, error)
	Read(id string) (index.Note, error)
}

// OpenFunc opens a fresh Source. It is called again whenever ignore rules
// change so the new rules take effect.
type OpenFunc func() (Source, error)

// Syncer applies watcher batches to an Indexer and remembers which notes it
// has indexed so directory removals and ignore-rule changes can be undone.
// It is also the watcher's Filter, always delegating to the current Source.
type Syncer struct {
	idx  Indexer
	open OpenFunc

	mu    sync.RWMutex
	src   Source
	known map[string]struct{}
}

// NewSyncer opens the source and returns a syncer with no known notes.
func NewSyncer(idx Indexer, open OpenFunc) (*Syncer, error) {
	src, err := open()
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}
	return &Syncer{idx: idx, open: open, src: src, known: make(map[string]struct{})}, nil
}

// Accepts implements Filter.
func (s *Syncer) Accepts(id string) bool {
	return s.source().Accepts(id)
}

// IsIgnoredDir implements Filter.
func (s *Syncer) IsIgnoredDir(id string) bool {
	return s.source().IsIgnoredDir(id)
}

func (s *Syncer) source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

// Seed lists the notebook and marks every note as known. The caller
// usually passes the result to Coordinator.ReindexAll.
func (s *Syncer) Seed(ctx context.Context) ([]index.Note, error) {
	list, err := s.source().List(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, n := range list {
		s.known[n.ID] = struct{}{}
	}
	s.mu.Unlock()
	return list, nil
}

// Known returns the number of notes the syncer believes are indexed.
func (s *Syncer) Known() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.known)
}

// Run applies batches until events is closed or ctx is done.
func (s *Syncer) Run(ctx context.Context, events <-chan []FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			s.Apply(ctx, batch)
		}
	}
}

// Apply turns one batch of events into index mutations.
func (s *Syncer) Apply(ctx context.Context, batch []FileEvent) {
	for _, ev := range batch {
		switch {
		case ev.Operation == OpIgnoreChange:
			s.reload(ctx)
		case ev.IsDir && ev.Operation.removes():
			s.deleteUnder(ev.Path)
		case ev.IsDir:
			s.indexUnder(ctx, ev.Path)
		case ev.Operation.removes():
			s.deleteNote(ev.Path)
		default:
			s.indexNote(ev.Path)
		}
	}
}

func (s *Syncer) indexNote(id string) {
	note, err := s.source().Read(id)
	if amerrors.GetCode(err) == amerrors.ErrCodeNoteNotFound {
		// Gone again before the batch was applied.
		s.deleteNote(id)
		return
	}
	if err != nil {
		slog.Warn("note_skipped", slog.String("note_id", id), slog.String("error", err.Error()))
		return
	}
	s.idx.Reindex(note.ID, note.Text)
	s.mu.Lock()
	s.known[note.ID] = struct{}{}
	s.mu.Unlock()
	slog.Debug("note_changed", slog.String("note_id", note.ID))
}

func (s *Syncer) deleteNote(id string) {
	s.idx.Delete(id)
	s.mu.Lock()
	delete(s.known, id)
	s.mu.Unlock()
	slog.Debug("note_removed", slog.String("note_id", id))
}

func (s *Syncer) deleteUnder(dir string) {
	prefix := dir + "/"
	s.mu.Lock()
	var gone []string
	for id := range s.known {
		if strings.HasPrefix(id, prefix) {
			gone = append(gone, id)
			delete(s.known, id)
		}
	}
	s.mu.Unlock()

	for _, id := range gone {
		s.idx.Delete(id)
	}
	if len(gone) > 0 {
		slog.Info("notes_removed_with_dir", slog.String("dir", dir), slog.Int("notes", len(gone)))
	}
}

// indexUnder picks up notes in a directory that appeared in one move.
func (s *Syncer) indexUnder(ctx context.Context, dir string) {
	list, err := s.source().List(ctx)
	if err != nil {
		slog.Warn("list_notes_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}
	prefix := dir + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range list {
		if strings.HasPrefix(n.ID, prefix) {
			s.idx.Reindex(n.ID, n.Text)
			s.known[n.ID] = struct{}{}
		}
	}
}

// reload reopens the source under new ignore rules and reconciles: notes
// now ignored are deleted, every listed note is reindexed.
func (s *Syncer) reload(ctx context.Context) {
	src, err := s.open()
	if err != nil {
		slog.Warn("ignore_reload_failed", slog.String("error", err.Error()))
		return
	}
	list, err := src.List(ctx)
	if err != nil {
		slog.Warn("ignore_reload_failed", slog.String("error", err.Error()))
		return
	}

	next := make(map[string]struct{}, len(list))
	for _, n := range list {
		next[n.ID] = struct{}{}
	}

	s.mu.Lock()
	var removed []string
	for id := range s.known {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	s.src = src
	s.known = next
	s.mu.Unlock()

	for _, id := range removed {
		s.idx.Delete(id)
	}
	for _, n := range list {
		s.idx.Reindex(n.ID, n.Text)
	}
	slog.Info("ignore_rules_reloaded", slog.Int("notes", len(list)), slog.Int("removed", len(removed)))
}
