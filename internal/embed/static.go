package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings by hashing words and character
// trigrams into a fixed number of buckets. No network, no model download.
// Deterministic and fast, with lexical rather than semantic similarity.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// stopWords are frequent English words that carry no topic.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "i": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "so": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "we": true, "with": true,
}

const (
	wordWeight    = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

// NewStaticEmbedder creates a static embedder producing dims-sized
// vectors. dims <= 0 selects DefaultDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns a zero vector for blank text. Output is not normalized;
// Provider does that.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	vector := make([]float32, e.dims)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector, nil
	}

	for _, w := range words(trimmed) {
		if stopWords[w] {
			continue
		}
		vector[hashToIndex(w, e.dims)] += wordWeight
	}
	for _, g := range trigrams(trimmed) {
		vector[hashToIndex(g, e.dims)] += trigramWeight
	}
	return vector, nil
}

// words lowercases text and splits it on anything that is not a letter
// or digit.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams extracts rune trigrams from the letters and digits of text.
func trigrams(text string) []string {
	var runes []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes = append(runes, r)
		}
	}
	if len(runes) < trigramSize {
		return []string{}
	}

	out := make([]string, 0, len(runes)-trigramSize+1)
	for i := 0; i+trigramSize <= len(runes); i++ {
		out = append(out, string(runes[i:i+trigramSize]))
	}
	return out
}

// hashToIndex uses FNV-64 to map a string to a bucket.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) ModelName() string { return "static" }

// Available is true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
