package store

import (
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk IDs so they never collide with other
// name-based UUIDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("amannotes:chunk"))

// ChunkID returns the stable ID of the seq-th chunk of a note. Reindexing
// identical text yields identical IDs.
func ChunkID(noteID string, seq int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(noteID+"\x00"+strconv.Itoa(seq))).String()
}

// validRow reports whether identifiers read back from storage are usable.
// Bad rows are logged and skipped by callers instead of failing the whole
// read.
func validRow(backend, chunkID, noteID string) bool {
	if noteID == "" {
		slog.Warn("index_row_skipped",
			slog.String("backend", backend),
			slog.String("chunk_id", chunkID),
			slog.String("reason", "empty note id"))
		return false
	}
	if _, err := uuid.Parse(chunkID); err != nil {
		slog.Warn("index_row_skipped",
			slog.String("backend", backend),
			slog.String("chunk_id", chunkID),
			slog.String("reason", err.Error()))
		return false
	}
	return true
}
