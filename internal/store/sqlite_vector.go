package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// SQLiteVectorStore persists embeddings as little-endian float32 blobs
// and answers queries by exact scan. Writes are transactional.
type SQLiteVectorStore struct {
	dims int
	path string

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ VectorStore = (*SQLiteVectorStore)(nil)

const vectorSchema = `
CREATE TABLE IF NOT EXISTS chunk_vectors (
	chunk_id  TEXT PRIMARY KEY,
	note_id   TEXT NOT NULL,
	seq       INTEGER NOT NULL DEFAULT 0,
	content   TEXT NOT NULL,
	dims      INTEGER NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunk_vectors_note_id ON chunk_vectors(note_id);
`

// NewSQLiteVectorStore opens (or creates) the store at path. An empty path
// gives an in-memory database.
func NewSQLiteVectorStore(path string, dims int) (*SQLiteVectorStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vector database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(vectorSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize vector schema: %w", err)
	}
	return &SQLiteVectorStore{dims: dims, path: path, db: db}, nil
}

func (s *SQLiteVectorStore) Replace(ctx context.Context, notes []NoteChunks) error {
	if len(notes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM chunk_vectors WHERE note_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunk_vectors(chunk_id, note_id, seq, content, dims, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	for _, n := range notes {
		if _, err := del.ExecContext(ctx, n.NoteID); err != nil {
			return fmt.Errorf("delete vectors of note %s: %w", n.NoteID, err)
		}
		for _, c := range n.Chunks {
			if !usableEmbedding(c, s.dims) {
				continue
			}
			if _, err := ins.ExecContext(ctx, c.ID, n.NoteID, c.Sequence, c.Text, s.dims, encodeVector(c.Embedding)); err != nil {
				return fmt.Errorf("insert vector %s: %w", c.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteVectorStore) DeleteNote(ctx context.Context, noteID string) error {
	return s.Replace(ctx, []NoteChunks{{NoteID: noteID}})
}

// DropAll empties the table, recreating it if the delete fails.
func (s *SQLiteVectorStore) DropAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	_, clearErr := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors`)
	if clearErr == nil {
		return nil
	}
	slog.Warn("vector_clear_failed",
		slog.String("path", s.path),
		slog.String("error", clearErr.Error()))

	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS chunk_vectors`); err != nil {
		return fmt.Errorf("drop table after clear failure (%v): %w", clearErr, err)
	}
	if _, err := s.db.ExecContext(ctx, vectorSchema); err != nil {
		return fmt.Errorf("recreate vector schema: %w", err)
	}
	return nil
}

// Search streams every row, skipping rows with bad identifiers or a
// stored dimensionality other than the store's.
func (s *SQLiteVectorStore) Search(ctx context.Context, q []float32, limit int) ([]Hit, error) {
	if err := checkQuery(q, s.dims); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, note_id, content, dims, embedding FROM chunk_vectors`)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	top := newTopK(limit)
	for rows.Next() {
		var (
			chunkID, noteID, content string
			dims                     int
			blob                     []byte
		)
		if err := rows.Scan(&chunkID, &noteID, &content, &dims, &blob); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if !validRow("sqlite-vector", chunkID, noteID) {
			continue
		}
		vec, err := decodeVector(blob, s.dims)
		if err != nil || dims != s.dims {
			slog.Warn("index_row_skipped",
				slog.String("backend", "sqlite-vector"),
				slog.String("chunk_id", chunkID),
				slog.String("reason", "dimension mismatch"))
			continue
		}
		top.push(Hit{
			ID:        chunkID,
			NoteID:    noteID,
			ChunkText: content,
			Score:     dot(q, vec),
			Source:    SourceVector,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top.sorted(), nil
}

func (s *SQLiteVectorStore) CountNote(ctx context.Context, noteID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunk_vectors WHERE note_id = ?`, noteID).Scan(&n)
	return n, err
}

func (s *SQLiteVectorStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT note_id) FROM chunk_vectors`).Scan(&st.Chunks, &st.Notes)
	return st, err
}

func (s *SQLiteVectorStore) Dimensions() int { return s.dims }

func (s *SQLiteVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
