package store

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// dot is cosine similarity for unit-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// topKPrealloc bounds the heap capacity reserved up front; the heap grows
// past it only as hits arrive.
const topKPrealloc = 64

// topK keeps the k highest-scoring hits seen so far in a min-heap.
type topK struct {
	k    int
	hits hitHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, hits: make(hitHeap, 0, max(0, min(k, topKPrealloc)))}
}

func (t *topK) push(h Hit) {
	if t.k <= 0 {
		return
	}
	if len(t.hits) < t.k {
		heap.Push(&t.hits, h)
		return
	}
	if h.Score > t.hits[0].Score {
		t.hits[0] = h
		heap.Fix(&t.hits, 0)
	}
}

// sorted returns the kept hits in non-increasing score order, ties broken
// by chunk ID so results are deterministic.
func (t *topK) sorted() []Hit {
	out := make([]Hit, len(t.hits))
	copy(out, t.hits)
	sortHits(out)
	return out
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, error) {
	if len(buf) != 4*dims {
		return nil, ErrDimensionMismatch{Expected: dims, Got: len(buf) / 4}
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// usableEmbedding reports whether a chunk can go into a vector store of
// the given dimensions.
func usableEmbedding(c Chunk, dims int) bool {
	return len(c.Embedding) == dims && dims > 0
}

func checkQuery(q []float32, dims int) error {
	if len(q) != dims {
		return fmt.Errorf("query vector: %w", ErrDimensionMismatch{Expected: dims, Got: len(q)})
	}
	return nil
}
