// Package notes reads a notebook directory and turns its files into the
// (note ID, text) pairs the index consumes.
//
// A note ID is the file's path relative to the notebook root with forward
// slashes, e.g. "projects/budget.md".
package notes

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
)

// DefaultMaxFileSize bounds the size of a single note.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Options configures a Dir.
type Options struct {
	// Extensions lists accepted file extensions including the dot.
	Extensions []string
	// Exclude holds gitignore-style patterns relative to the root.
	Exclude []string
	// MaxFileSize skips larger files. Zero uses DefaultMaxFileSize.
	MaxFileSize int64
}

// Dir is a note store backed by a directory tree.
type Dir struct {
	root    string
	exts    []string
	maxSize int64
	ignore  *Matcher
}

// NewDir opens root as a notebook. Ignore files found in root are added to
// the exclude patterns.
func NewDir(root string, opts Options) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve notes root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "notes root is not accessible", err).
			WithSuggestion("Set notes.root in .amannotes.yaml or AMANNOTES_NOTES_ROOT")
	}
	if !info.IsDir() {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "notes root is not a directory: "+abs, nil)
	}

	d := &Dir{
		root:    abs,
		maxSize: opts.MaxFileSize,
		ignore:  NewMatcher(opts.Exclude...),
	}
	if d.maxSize <= 0 {
		d.maxSize = DefaultMaxFileSize
	}
	for _, ext := range opts.Extensions {
		d.exts = append(d.exts, strings.ToLower(ext))
	}
	for _, name := range IgnoreFiles {
		if err := d.ignore.AddFile(filepath.Join(abs, name)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Root returns the absolute notebook root.
func (d *Dir) Root() string { return d.root }

// List returns every accepted note under the root, sorted by ID. Files that
// cannot be read are skipped with a warning.
func (d *Dir) List(ctx context.Context) ([]index.Note, error) {
	var notes []index.Note
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Warn("note_walk_failed", slog.String("path", p), slog.String("error", err.Error()))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == d.root {
			return nil
		}

		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)

		if entry.IsDir() {
			if d.ignore.Match(id, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !d.Accepts(id) {
			return nil
		}

		note, err := d.read(id, p)
		if err != nil {
			slog.Warn("note_skipped", slog.String("note_id", id), slog.String("error", err.Error()))
			return nil
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk notes: %w", err)
	}

	slices.SortFunc(notes, func(a, b index.Note) int { return strings.Compare(a.ID, b.ID) })
	return notes, nil
}

// Accepts reports whether a note ID names a file this store would index:
// an accepted extension that no ignore rule excludes.
func (d *Dir) Accepts(id string) bool {
	if !slices.Contains(d.exts, strings.ToLower(filepath.Ext(id))) {
		return false
	}
	return !d.ignore.Match(id, false)
}

// Read loads one note by ID.
func (d *Dir) Read(id string) (index.Note, error) {
	p, err := d.Path(id)
	if err != nil {
		return index.Note{}, err
	}
	return d.read(id, p)
}

func (d *Dir) read(id, p string) (index.Note, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return index.Note{}, amerrors.New(amerrors.ErrCodeNoteNotFound, "note not found: "+id, err)
	}
	if err != nil {
		return index.Note{}, fmt.Errorf("stat note: %w", err)
	}
	if info.Size() > d.maxSize {
		return index.Note{}, amerrors.New(amerrors.ErrCodeInvalidInput,
			fmt.Sprintf("note %s exceeds %d bytes", id, d.maxSize), nil)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return index.Note{}, fmt.Errorf("read note: %w", err)
	}
	if isBinary(data) {
		return index.Note{}, amerrors.New(amerrors.ErrCodeInvalidInput, "note is binary: "+id, nil)
	}

	text := string(data)
	if isMarkdown(filepath.Ext(p)) {
		text = PlainText(data)
	}
	return index.Note{ID: id, Text: text}, nil
}

// Path maps a note ID to its file. IDs escaping the root are rejected.
func (d *Dir) Path(id string) (string, error) {
	if err := index.ValidateNoteID(id); err != nil {
		return "", err
	}
	local := filepath.FromSlash(id)
	if !filepath.IsLocal(local) {
		return "", amerrors.New(amerrors.ErrCodeInvalidNoteID, "note id leaves the notes root: "+id, nil)
	}
	return filepath.Join(d.root, local), nil
}

// ID maps an absolute file path back to a note ID. ok is false for paths
// outside the root.
func (d *Dir) ID(absPath string) (id string, ok bool) {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// IsIgnoredDir reports whether a directory (by relative ID) is excluded.
func (d *Dir) IsIgnoredDir(id string) bool {
	return d.ignore.Match(id, true)
}

// isBinary looks for a NUL byte in the first 512 bytes.
func isBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), 512)], 0) >= 0
}
