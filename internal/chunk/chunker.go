// Package chunk splits note text into bounded windows for indexing.
package chunk

import (
	"errors"
	"unicode"
)

// DefaultMaxChars is the window size used when none is configured.
const DefaultMaxChars = 1000

// ErrInvalidMaxChars is returned for a non-positive window size.
var ErrInvalidMaxChars = errors.New("chunk: maxChars must be positive")

// Split cuts text into windows of at most maxChars runes.
//
// Each window ends at the last whitespace rune at or before the hard
// boundary; that single whitespace rune is consumed by the cut. A window
// with no whitespace after its start is cut at the hard boundary so the
// cursor always advances. Text that fits in one window (including the
// empty string) is returned unchanged as a single chunk.
func Split(text string, maxChars int) ([]string, error) {
	if maxChars <= 0 {
		return nil, ErrInvalidMaxChars
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}, nil
	}

	chunks := make([]string, 0, len(runes)/maxChars+1)
	cursor := 0
	for cursor < len(runes) {
		if len(runes)-cursor <= maxChars {
			chunks = append(chunks, string(runes[cursor:]))
			break
		}

		hard := cursor + maxChars
		cut := lastSpace(runes, cursor, hard)
		if cut < 0 {
			chunks = append(chunks, string(runes[cursor:hard]))
			cursor = hard
			continue
		}

		chunks = append(chunks, string(runes[cursor:cut]))
		cursor = cut + 1
	}
	return chunks, nil
}

// lastSpace returns the index of the last whitespace rune in (from, to],
// or -1.
func lastSpace(runes []rune, from, to int) int {
	for i := to; i > from; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// Chunker applies Split with a fixed window size.
type Chunker struct {
	MaxChars int
}

// New returns a Chunker, or ErrInvalidMaxChars for a non-positive size.
func New(maxChars int) (*Chunker, error) {
	if maxChars <= 0 {
		return nil, ErrInvalidMaxChars
	}
	return &Chunker{MaxChars: maxChars}, nil
}

// Chunks splits text and drops windows that hold only whitespace, so an
// empty note produces no chunks at all.
func (c *Chunker) Chunks(text string) []string {
	parts, err := Split(text, c.MaxChars)
	if err != nil {
		return nil
	}

	out := parts[:0]
	for _, p := range parts {
		if !blank(p) {
			out = append(out, p)
		}
	}
	return out
}

func blank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
