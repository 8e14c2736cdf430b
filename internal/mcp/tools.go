package mcp

// SearchNotesInput defines the input schema for the search_notes tool.
type SearchNotesInput struct {
	Query   string `json:"query" jsonschema:"the search query to execute"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Natural bool   `json:"natural,omitempty" jsonschema:"treat the query as free text; punctuation is ignored"`
}

// SearchNotesOutput defines the output schema for the search_notes tool.
type SearchNotesOutput struct {
	Query string      `json:"query"`
	Hits  []HitOutput `json:"hits" jsonschema:"matching chunks, best first"`
}

// HitOutput is one matching chunk.
type HitOutput struct {
	NoteID  string  `json:"note_id" jsonschema:"note identifier, a path relative to the notes root"`
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text" jsonschema:"matched chunk text"`
	Score   float64 `json:"score" jsonschema:"relevance score; scale depends on source"`
	Source  string  `json:"source" jsonschema:"lexical or vector"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Root            string                  `json:"root,omitempty"`
	MergePolicy     string                  `json:"merge_policy"`
	Indexing        bool                    `json:"indexing"`
	LastFullReindex string                  `json:"last_full_reindex,omitempty"`
	Queued          int                     `json:"queued"`
	Backends        map[string]BackendStats `json:"backends"`
	Embeddings      EmbeddingInfo           `json:"embeddings"`
	Progress        *IndexingProgress       `json:"progress,omitempty"` // Present once a full reindex ran
}

// BackendStats counts the contents of one backend.
type BackendStats struct {
	Notes  int `json:"notes"`
	Chunks int `json:"chunks"`
}

// IndexingProgress describes the latest full reindex.
type IndexingProgress struct {
	Status         string  `json:"status"` // "indexing", "ready", or "error"
	Stage          string  `json:"stage,omitempty"`
	NotesTotal     int     `json:"notes_total"`
	NotesProcessed int     `json:"notes_processed"`
	NotesFailed    int     `json:"notes_failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// EmbeddingInfo lets clients decide whether natural-language search is useful.
type EmbeddingInfo struct {
	Enabled    bool   `json:"enabled"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Breaker    string `json:"breaker,omitempty"` // circuit breaker state: closed, open, half-open
}

// ReindexNotesInput defines the input schema for the reindex_notes tool (no parameters).
type ReindexNotesInput struct{}

// ReindexNotesOutput reports whether a full reindex was started.
type ReindexNotesOutput struct {
	Started bool   `json:"started"`
	Notes   int    `json:"notes"`
	Reason  string `json:"reason,omitempty"`
}
