package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver with FTS5
)

// SQLiteLexicalStore implements LexicalStore on SQLite FTS5.
//
// Chunk identity lives in the chunks table; the FTS5 row with the same
// rowid as chunks.id holds the searchable text.
type SQLiteLexicalStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ LexicalStore = (*SQLiteLexicalStore)(nil)

const lexicalSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chunks (
	id       INTEGER PRIMARY KEY,
	chunk_id TEXT NOT NULL UNIQUE,
	note_id  TEXT NOT NULL,
	seq      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS chunks_note_id ON chunks(note_id);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// validateLexicalDB checks an existing database before it is opened for
// writing. A missing file is valid.
func validateLexicalDB(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
	                   WHERE name IN ('chunks', 'chunks_fts')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 2 {
		return fmt.Errorf("schema incomplete: %d of 2 tables", count)
	}
	return nil
}

// NewSQLiteLexicalStore opens (or creates) an FTS5 store at path. An empty
// path gives an in-memory store. A corrupted file is removed and recreated
// empty; the next full reindex repopulates it.
func NewSQLiteLexicalStore(path string) (*SQLiteLexicalStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}

		if validErr := validateLexicalDB(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := removeSQLiteFiles(path); err != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
			}
			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: serializes writers and keeps :memory: a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteLexicalStore{db: db, path: path}
	if _, err := db.Exec(lexicalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func removeSQLiteFiles(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// Replace deletes and reinserts the chunks of every listed note in one
// transaction.
func (s *SQLiteLexicalStore) Replace(ctx context.Context, notes []NoteChunks) error {
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

	insertChunk, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(chunk_id, note_id, seq) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer insertChunk.Close()

	insertText, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks_fts(rowid, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	defer insertText.Close()

	for _, n := range notes {
		if err := deleteNoteTx(ctx, tx, n.NoteID); err != nil {
			return err
		}
		for _, c := range n.Chunks {
			res, err := insertChunk.ExecContext(ctx, c.ID, n.NoteID, c.Sequence)
			if err != nil {
				return fmt.Errorf("insert chunk %s: %w", c.ID, err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("rowid of chunk %s: %w", c.ID, err)
			}
			if _, err := insertText.ExecContext(ctx, rowID, c.Text); err != nil {
				return fmt.Errorf("index chunk %s: %w", c.ID, err)
			}
		}
	}

	return tx.Commit()
}

func deleteNoteTx(ctx context.Context, tx *sql.Tx, noteID string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE rowid IN (SELECT id FROM chunks WHERE note_id = ?)`,
		noteID); err != nil {
		return fmt.Errorf("delete fts rows of note %s: %w", noteID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("delete chunks of note %s: %w", noteID, err)
	}
	return nil
}

func (s *SQLiteLexicalStore) DeleteNote(ctx context.Context, noteID string) error {
	return s.Replace(ctx, []NoteChunks{{NoteID: noteID}})
}

// DropAll clears both tables. If clearing fails the tables are dropped and
// the schema recreated.
func (s *SQLiteLexicalStore) DropAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	clearErr := s.clear(ctx)
	if clearErr == nil {
		return nil
	}

	slog.Warn("lexical_clear_failed",
		slog.String("path", s.path),
		slog.String("error", clearErr.Error()))

	if _, err := s.db.ExecContext(ctx,
		`DROP TABLE IF EXISTS chunks_fts; DROP TABLE IF EXISTS chunks;`); err != nil {
		return fmt.Errorf("drop tables after clear failure (%v): %w", clearErr, err)
	}
	if _, err := s.db.ExecContext(ctx, lexicalSchema); err != nil {
		return fmt.Errorf("recreate schema: %w", err)
	}
	slog.Info("lexical_schema_recreated", slog.String("path", s.path))
	return nil
}

func (s *SQLiteLexicalStore) clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return err
	}
	return tx.Commit()
}

// lexicalPrealloc bounds the result capacity reserved before rows arrive.
const lexicalPrealloc = 64

// Search ranks by FTS5 bm25(), where lower is better, and reports
// score = -bm25 so that higher is better.
func (s *SQLiteLexicalStore) Search(ctx context.Context, terms []string, limit int) ([]Hit, error) {
	expr := MatchExpression(terms)
	if expr == "" || limit <= 0 {
		return []Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	const query = `
		SELECT c.chunk_id, c.note_id, m.content, m.score
		FROM (
			SELECT rowid, content, bm25(chunks_fts) AS score
			FROM chunks_fts
			WHERE chunks_fts MATCH ?
			ORDER BY score
			LIMIT ?
		) AS m
		JOIN chunks c ON c.id = m.rowid
		ORDER BY m.score`

	rows, err := s.db.QueryContext(ctx, query, expr, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			slog.Debug("lexical_query_rejected",
				slog.String("match", expr),
				slog.String("error", err.Error()))
			return []Hit{}, nil
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, min(limit, lexicalPrealloc))
	for rows.Next() {
		var (
			chunkID, noteID, content string
			bm25                     float64
		)
		if err := rows.Scan(&chunkID, &noteID, &content, &bm25); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if !validRow("sqlite-fts", chunkID, noteID) {
			continue
		}
		hits = append(hits, Hit{
			ID:        chunkID,
			NoteID:    noteID,
			ChunkText: content,
			Score:     -bm25,
			Source:    SourceLexical,
		})
	}
	return hits, rows.Err()
}

func (s *SQLiteLexicalStore) CountNote(ctx context.Context, noteID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE note_id = ?`, noteID).Scan(&n)
	return n, err
}

func (s *SQLiteLexicalStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}

	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT note_id) FROM chunks`).Scan(&st.Chunks, &st.Notes)
	return st, err
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteLexicalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
