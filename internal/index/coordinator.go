package index

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amannotes/internal/async"
	"github.com/Aman-CERP/amannotes/internal/store"
)

const (
	// DefaultCooldown is the minimum time between two accepted full
	// reindexes.
	DefaultCooldown = 5 * time.Minute

	// DefaultSearchLimit is used when a search passes a limit of zero.
	DefaultSearchLimit = 5

	// MaxSearchLimit is the largest number of hits a search returns.
	// Larger limits are clamped.
	MaxSearchLimit = 100

	// DefaultBatchSize is the number of notes written per backend call
	// during a full reindex.
	DefaultBatchSize = 64

	// DefaultWorkers bounds how many notes are reindexed at once.
	DefaultWorkers = 4

	// rrfMinFetch is the minimum per-backend depth fetched for fusion.
	rrfMinFetch = 20
)

// Config configures a Coordinator.
type Config struct {
	Cooldown     time.Duration
	MergePolicy  MergePolicy
	Dedup        bool
	Workers      int
	BatchSize    int
	DefaultLimit int

	// DataDir holds the full-reindex lock file. Empty disables it.
	DataDir string

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Cooldown:     DefaultCooldown,
		MergePolicy:  MergeUnion,
		Dedup:        true,
		Workers:      DefaultWorkers,
		BatchSize:    DefaultBatchSize,
		DefaultLimit: DefaultSearchLimit,
		Now:          time.Now,
	}
}

func (c *Config) applyDefaults() {
	if c.MergePolicy == "" {
		c.MergePolicy = MergeUnion
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultSearchLimit
	}
	c.DefaultLimit = min(c.DefaultLimit, MaxSearchLimit)
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Indexing          bool                         `json:"indexing"`
	LastFullReindexAt time.Time                    `json:"last_full_reindex_at"`
	MergePolicy       MergePolicy                  `json:"merge_policy"`
	Queued            int                          `json:"queued"`
	Progress          *async.IndexProgressSnapshot `json:"progress,omitempty"`
	Backends          map[string]store.Stats       `json:"backends"`
}

// Coordinator keeps both indexes in step with note content. Per-note
// changes are applied in the background, full reindexes are rate limited,
// and searches merge both backends according to the merge policy.
//
// Mutations and searches never return backend errors; failures are logged
// and the affected backend is skipped.
type Coordinator struct {
	lexical Backend
	vector  Backend
	config  Config
	queue   *dispatcher

	// writeMu orders bulk batch writes against per-note operations.
	writeMu sync.RWMutex

	mu                sync.Mutex
	isIndexing        bool
	touched           map[string]struct{} // notes changed during the full reindex
	lastFullReindexAt time.Time
	bulk              *async.BackgroundIndexer
	bulkDone          sync.WaitGroup
	closed            bool
}

// NewCoordinator creates a coordinator. Either backend may be nil, in which
// case searches and writes use the other one only.
func NewCoordinator(lexical, vector Backend, cfg Config) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		lexical: lexical,
		vector:  vector,
		config:  cfg,
	}
	c.queue = newDispatcher(context.Background(), cfg.Workers, c.apply)
	return c
}

func (c *Coordinator) backends() []Backend {
	out := make([]Backend, 0, 2)
	if c.lexical != nil {
		out = append(out, c.lexical)
	}
	if c.vector != nil {
		out = append(out, c.vector)
	}
	return out
}

// IsIndexing reports whether a full reindex is in flight.
func (c *Coordinator) IsIndexing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isIndexing
}

// LastFullReindexAt returns when the last full reindex was accepted.
func (c *Coordinator) LastFullReindexAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFullReindexAt
}

// ReindexAll rebuilds the supplied notes on both backends in the
// background. It returns false without doing anything while another full
// reindex runs or within the cooldown of the last accepted one.
func (c *Coordinator) ReindexAll(ctx context.Context, notes []Note) bool {
	c.mu.Lock()
	now := c.config.Now()
	if c.closed || c.isIndexing || now.Sub(c.lastFullReindexAt) < c.config.Cooldown {
		indexing, last := c.isIndexing, c.lastFullReindexAt
		c.mu.Unlock()
		slog.Debug("full_reindex_skipped",
			slog.Bool("indexing", indexing),
			slog.Time("last_full_reindex_at", last))
		return false
	}

	batch := dedupeNotes(notes)
	c.isIndexing = true
	c.touched = make(map[string]struct{})
	c.lastFullReindexAt = now
	c.bulk = async.NewBackgroundIndexer(async.IndexerConfig{
		DataDir: c.config.DataDir,
		Total:   len(batch),
	}, func(ctx context.Context, p *async.IndexProgress) error {
		return c.reindexBulk(ctx, batch, p)
	})
	bulk := c.bulk
	c.bulkDone.Add(1)
	c.mu.Unlock()

	slog.Info("full_reindex_started", slog.Int("notes", len(batch)))
	bulk.Start(context.WithoutCancel(ctx))

	go func() {
		defer c.bulkDone.Done()
		err := bulk.Wait()
		c.mu.Lock()
		c.isIndexing = false
		c.touched = nil
		c.mu.Unlock()

		snap := bulk.Progress().Snapshot()
		if err != nil {
			slog.Warn("full_reindex_stopped",
				slog.Int("processed", snap.NotesProcessed),
				slog.String("error", err.Error()))
			return
		}
		slog.Info("full_reindex_complete",
			slog.Int("notes", snap.NotesProcessed),
			slog.Int("failed", snap.NotesFailed),
			slog.Int("elapsed_seconds", snap.ElapsedSeconds))
	}()
	return true
}

// dedupeNotes drops invalid IDs and keeps the last text given for each
// note.
func dedupeNotes(notes []Note) []Note {
	last := make(map[string]int, len(notes))
	for i, n := range notes {
		if err := ValidateNoteID(n.ID); err != nil {
			slog.Warn("note_skipped", slog.String("reason", err.Error()))
			continue
		}
		last[n.ID] = i
	}
	out := make([]Note, 0, len(last))
	for i, n := range notes {
		if j, ok := last[n.ID]; ok && j == i {
			out = append(out, n)
		}
	}
	return out
}

func (c *Coordinator) reindexBulk(ctx context.Context, notes []Note, p *async.IndexProgress) error {
	p.SetStage(async.StageIndexing)
	for start := 0; start < len(notes); start += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := notes[start:min(start+c.config.BatchSize, len(notes))]

		c.writeMu.Lock()
		pending := c.untouched(batch)
		failed := 0
		if len(pending) > 0 && !c.writeBatch(ctx, pending) {
			failed = len(pending)
		}
		c.writeMu.Unlock()

		p.AddProcessed(len(batch), failed)
	}
	return nil
}

// untouched drops notes that had a per-note operation since the full
// reindex was accepted. Their queued or applied change is newer than the
// bulk snapshot.
func (c *Coordinator) untouched(batch []Note) []Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.touched) == 0 {
		return batch
	}
	out := make([]Note, 0, len(batch))
	for _, n := range batch {
		if _, ok := c.touched[n.ID]; ok {
			slog.Debug("bulk_note_superseded", slog.String("note_id", n.ID))
			continue
		}
		out = append(out, n)
	}
	return out
}

// writeBatch writes one batch to every backend in parallel and reports
// whether all of them succeeded.
func (c *Coordinator) writeBatch(ctx context.Context, batch []Note) bool {
	backends := c.backends()
	errs := make([]error, len(backends))

	var g errgroup.Group
	for i, b := range backends {
		g.Go(func() error {
			errs[i] = b.ReindexBulk(ctx, batch)
			return nil
		})
	}
	_ = g.Wait()

	ok := true
	for i, err := range errs {
		if err != nil {
			ok = false
			slog.Warn("bulk_reindex_failed",
				slog.String("backend", backends[i].Name()),
				slog.Int("notes", len(batch)),
				slog.String("error", err.Error()))
		}
	}
	return ok
}

// Reindex schedules the note to be rebuilt from text. The latest submitted
// change for a note wins.
func (c *Coordinator) Reindex(noteID, text string) {
	c.submit(noteID, noteOp{kind: opReindex, text: text})
}

// Delete schedules removal of the note from both indexes.
func (c *Coordinator) Delete(noteID string) {
	c.submit(noteID, noteOp{kind: opDelete})
}

func (c *Coordinator) submit(noteID string, op noteOp) {
	if err := ValidateNoteID(noteID); err != nil {
		slog.Warn("note_skipped", slog.String("op", op.kind.String()), slog.String("reason", err.Error()))
		return
	}
	c.mu.Lock()
	if c.touched != nil {
		c.touched[noteID] = struct{}{}
	}
	c.mu.Unlock()
	if !c.queue.submit(noteID, op) {
		slog.Debug("note_op_dropped_closed", slog.String("note_id", noteID))
	}
}

// apply runs one queued note operation on every backend in parallel.
func (c *Coordinator) apply(ctx context.Context, noteID string, op noteOp) {
	c.writeMu.RLock()
	defer c.writeMu.RUnlock()

	var g errgroup.Group
	for _, b := range c.backends() {
		g.Go(func() error {
			var err error
			if op.kind == opDelete {
				err = b.Delete(ctx, noteID)
			} else {
				err = b.Reindex(ctx, noteID, op.text)
			}
			if err != nil {
				slog.Warn(b.Name()+"_"+op.kind.String()+"_failed",
					slog.String("note_id", noteID),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// DropAll clears both indexes and re-enables an immediate full reindex.
func (c *Coordinator) DropAll(ctx context.Context) {
	c.mu.Lock()
	c.lastFullReindexAt = time.Unix(0, 0)
	c.mu.Unlock()

	for _, b := range c.backends() {
		if err := b.DropAll(ctx); err != nil {
			slog.Warn(b.Name()+"_drop_failed", slog.String("error", err.Error()))
		}
	}
	slog.Info("index_dropped")
}

// Search returns up to limit hits for query, merged per the configured
// policy. A limit of zero or less means the default limit, and limits above
// MaxSearchLimit are clamped. It never fails: a failing backend contributes
// no hits.
func (c *Coordinator) Search(ctx context.Context, query string, limit int) []SearchHit {
	if limit <= 0 {
		limit = c.config.DefaultLimit
	}
	limit = min(limit, MaxSearchLimit)
	if strings.TrimSpace(query) == "" {
		return []SearchHit{}
	}

	var hits []SearchHit
	switch c.config.MergePolicy {
	case MergeLexical:
		hits = c.searchOne(ctx, c.lexical, query, limit)
	case MergeVector:
		hits = c.searchOne(ctx, c.vector, query, limit)
	case MergeRRF:
		fetch := max(2*limit, rrfMinFetch)
		lex, vec := c.searchBoth(ctx, query, fetch)
		hits = mergeRRF(lex, vec, limit)
	default:
		lex, vec := c.searchBoth(ctx, query, limit)
		hits = mergeUnion(lex, vec, c.config.Dedup)
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	return hits
}

// SearchNatural reduces free text to its search terms and searches with
// them.
func (c *Coordinator) SearchNatural(ctx context.Context, text string, limit int) []SearchHit {
	return c.Search(ctx, strings.Join(store.QueryTerms(text), " "), limit)
}

func (c *Coordinator) searchBoth(ctx context.Context, query string, limit int) (lexical, vector []SearchHit) {
	var g errgroup.Group
	g.Go(func() error {
		lexical = c.searchOne(ctx, c.lexical, query, limit)
		return nil
	})
	g.Go(func() error {
		vector = c.searchOne(ctx, c.vector, query, limit)
		return nil
	})
	_ = g.Wait()
	return lexical, vector
}

func (c *Coordinator) searchOne(ctx context.Context, b Backend, query string, limit int) []SearchHit {
	if b == nil {
		return nil
	}
	hits, err := b.Search(ctx, query, limit)
	if err != nil {
		slog.Warn("search_backend_failed",
			slog.String("backend", b.Name()),
			slog.String("error", err.Error()))
		return nil
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// CountNote returns the chunk count of a note in each backend.
func (c *Coordinator) CountNote(ctx context.Context, noteID string) map[string]int {
	out := make(map[string]int, 2)
	for _, b := range c.backends() {
		n, err := b.CountNote(ctx, noteID)
		if err != nil {
			slog.Warn("count_note_failed", slog.String("backend", b.Name()), slog.String("error", err.Error()))
			continue
		}
		out[b.Name()] = n
	}
	return out
}

// Status returns a snapshot of the coordinator and its backends.
func (c *Coordinator) Status(ctx context.Context) Status {
	c.mu.Lock()
	st := Status{
		Indexing:          c.isIndexing,
		LastFullReindexAt: c.lastFullReindexAt,
		MergePolicy:       c.config.MergePolicy,
		Backends:          make(map[string]store.Stats, 2),
	}
	if c.bulk != nil {
		snap := c.bulk.Progress().Snapshot()
		st.Progress = &snap
	}
	c.mu.Unlock()

	st.Queued = c.queue.queued()
	for _, b := range c.backends() {
		stats, err := b.Stats(ctx)
		if err != nil {
			slog.Warn("stats_failed", slog.String("backend", b.Name()), slog.String("error", err.Error()))
			continue
		}
		st.Backends[b.Name()] = stats
	}
	return st
}

// Wait blocks until queued note operations and any full reindex finish.
func (c *Coordinator) Wait() {
	c.bulkDone.Wait()
	c.queue.wait()
}

// Close stops a running full reindex, drains queued note operations and
// closes both backends.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	bulk := c.bulk
	c.mu.Unlock()

	if bulk != nil {
		bulk.Stop()
	}
	c.bulkDone.Wait()
	c.queue.close()

	var errs []error
	for _, b := range c.backends() {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
