package watcher

import (
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file or directory was removed.
	OpDelete
	// OpRename indicates a file or directory was moved away from Path.
	// The new name, if it is inside the notebook, arrives as OpCreate.
	OpRename
	// OpIgnoreChange indicates a .gitignore or .amannotesignore file changed.
	// The note set is reconciled against the new rules.
	OpIgnoreChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// removes reports whether the operation makes Path disappear.
func (op Operation) removes() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent represents a file system event inside the notebook.
type FileEvent struct {
	// Path is relative to the notebook root, slash-separated: a note ID for
	// files.
	Path string

	Operation Operation

	IsDir bool

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Filter decides which paths the watcher reports.
type Filter interface {
	// Accepts reports whether a file path names a note.
	Accepts(id string) bool
	// IsIgnoredDir reports whether a directory is excluded from watching.
	IsIgnoredDir(id string) bool
}

// Options configures the watcher behavior.
type Options struct {
	// Debounce is the quiet period before coalesced events are emitted.
	// Default: 500ms
	Debounce time.Duration

	// PollInterval is the scan interval in polling mode.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 100
	EventBufferSize int

	// ForcePolling skips fsnotify. Useful on network mounts where inotify
	// events are not delivered.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
