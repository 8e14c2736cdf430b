package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend names a LexicalStore implementation.
type LexicalBackend string

const (
	// LexicalSQLite uses SQLite FTS5 (default).
	LexicalSQLite LexicalBackend = "sqlite"
	// LexicalBleve uses a bleve index directory.
	LexicalBleve LexicalBackend = "bleve"
)

// VectorBackend names a VectorStore implementation.
type VectorBackend string

const (
	// VectorFlat is an exact in-memory scan (default).
	VectorFlat VectorBackend = "flat"
	// VectorHNSW is an approximate HNSW graph.
	VectorHNSW VectorBackend = "hnsw"
	// VectorSQLite is an exact scan over vectors persisted in SQLite.
	VectorSQLite VectorBackend = "sqlite"
	// VectorQdrant stores vectors in a remote Qdrant collection.
	VectorQdrant VectorBackend = "qdrant"
)

// NewLexicalStore opens the lexical backend under dataDir. An empty
// dataDir opens the backend in memory.
func NewLexicalStore(backend LexicalBackend, dataDir string) (LexicalStore, error) {
	switch backend {
	case LexicalSQLite, "":
		return NewSQLiteLexicalStore(dataPath(dataDir, "lexical.db"))
	case LexicalBleve:
		return NewBleveLexicalStore(dataPath(dataDir, "lexical.bleve"))
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// VectorOptions configures NewVectorStore.
type VectorOptions struct {
	Backend    VectorBackend
	Dimensions int

	// DataDir holds persistent vector files. Empty keeps hnsw and sqlite
	// in memory.
	DataDir string

	HNSW   HNSWConfig
	Qdrant QdrantConfig
}

// NewVectorStore opens the configured vector backend.
func NewVectorStore(opts VectorOptions) (VectorStore, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", opts.Dimensions)
	}

	switch opts.Backend {
	case VectorFlat, "":
		return NewFlatVectorStore(opts.Dimensions), nil
	case VectorHNSW:
		cfg := opts.HNSW
		cfg.Dimensions = opts.Dimensions
		if cfg.Path == "" {
			cfg.Path = dataPath(opts.DataDir, "vectors.hnsw")
		}
		return NewHNSWVectorStore(cfg)
	case VectorSQLite:
		return NewSQLiteVectorStore(dataPath(opts.DataDir, "vectors.db"), opts.Dimensions)
	case VectorQdrant:
		cfg := opts.Qdrant
		cfg.Dimensions = opts.Dimensions
		return NewQdrantVectorStore(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: flat, hnsw, sqlite, qdrant)", opts.Backend)
	}
}

func dataPath(dir, name string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}
