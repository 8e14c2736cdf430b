// Package async runs whole-corpus reindexing in the background and tracks
// its progress.
package async

import (
	"sync"
	"time"
)

// IndexingStatus represents the overall state of a full reindex.
type IndexingStatus string

const (
	// StatusIndexing indicates the reindex is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady indicates the reindex finished.
	StatusReady IndexingStatus = "ready"
	// StatusError indicates the reindex stopped early.
	StatusError IndexingStatus = "error"
)

// IndexingStage represents the current stage of a full reindex.
type IndexingStage string

const (
	// StagePending is set before the first batch starts.
	StagePending IndexingStage = "pending"
	// StageIndexing is set while batches are written to the backends.
	StageIndexing IndexingStage = "indexing"
	// StageDone is set once every batch was attempted.
	StageDone IndexingStage = "done"
)

// IndexProgressSnapshot is an immutable snapshot of reindex progress.
type IndexProgressSnapshot struct {
	Status         string    `json:"status"`
	Stage          string    `json:"stage"`
	NotesTotal     int       `json:"notes_total"`
	NotesProcessed int       `json:"notes_processed"`
	NotesFailed    int       `json:"notes_failed"`
	ProgressPct    float64   `json:"progress_pct"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// IndexProgress provides thread-safe tracking of reindex progress.
type IndexProgress struct {
	mu sync.RWMutex

	status         IndexingStatus
	stage          IndexingStage
	notesTotal     int
	notesProcessed int
	notesFailed    int
	startTime      time.Time
	endTime        time.Time
	errorMessage   string
}

// NewIndexProgress creates a tracker for a reindex of total notes.
func NewIndexProgress(total int) *IndexProgress {
	return &IndexProgress{
		status:     StatusIndexing,
		stage:      StagePending,
		notesTotal: total,
		startTime:  time.Now(),
	}
}

// SetStage updates the current stage.
func (p *IndexProgress) SetStage(stage IndexingStage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
}

// AddProcessed records a finished batch of n notes, failed of which could
// not be written to at least one backend.
func (p *IndexProgress) AddProcessed(n, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notesProcessed += n
	p.notesFailed += failed
}

// SetError marks the reindex as failed.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.errorMessage = message
	p.endTime = time.Now()
}

// SetReady marks the reindex as complete.
func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusReady
	p.stage = StageDone
	p.endTime = time.Now()
}

// IsIndexing returns true while the reindex is in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusIndexing
}

// Snapshot returns a copy of the current state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.notesTotal > 0 {
		progressPct = float64(p.notesProcessed) / float64(p.notesTotal) * 100.0
	} else if p.status == StatusReady {
		progressPct = 100.0
	}

	end := p.endTime
	if end.IsZero() {
		end = time.Now()
	}

	return IndexProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		NotesTotal:     p.notesTotal,
		NotesProcessed: p.notesProcessed,
		NotesFailed:    p.notesFailed,
		ProgressPct:    progressPct,
		StartedAt:      p.startTime,
		ElapsedSeconds: int(end.Sub(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
