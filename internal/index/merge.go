package index

import (
	"fmt"
	"sort"
	"strings"
)

// MergePolicy selects how lexical and vector hits are combined.
type MergePolicy string

const (
	// MergeLexical returns lexical hits only.
	MergeLexical MergePolicy = "lexical"
	// MergeVector returns vector hits only.
	MergeVector MergePolicy = "vector"
	// MergeUnion returns lexical hits followed by vector hits.
	MergeUnion MergePolicy = "union"
	// MergeRRF fuses both rankings with Reciprocal Rank Fusion.
	MergeRRF MergePolicy = "rrf"
)

// rrfConstant is the RRF smoothing constant k.
const rrfConstant = 60

// ParseMergePolicy parses a policy name, case-insensitively.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch p := MergePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MergeLexical, MergeVector, MergeUnion, MergeRRF:
		return p, nil
	case "":
		return MergeUnion, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q (valid: lexical, vector, union, rrf)", s)
	}
}

// mergeUnion concatenates lexical then vector hits. With dedup, a vector
// hit on a chunk already returned lexically is dropped.
func mergeUnion(lexical, vector []SearchHit, dedup bool) []SearchHit {
	out := make([]SearchHit, 0, len(lexical)+len(vector))
	out = append(out, lexical...)
	if !dedup {
		return append(out, vector...)
	}

	seen := make(map[string]struct{}, len(lexical))
	for _, h := range lexical {
		seen[h.ID] = struct{}{}
	}
	for _, h := range vector {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}

// fusedHit accumulates a chunk's RRF score across rankings.
type fusedHit struct {
	hit   SearchHit
	score float64
	best  int
}

// mergeRRF fuses two rankings: score(d) = sum of 1 / (k + rank), rank
// 1-based. Each chunk appears once and keeps the hit (and source) of the
// ranking that placed it higher; on equal ranks the lexical hit is kept.
// Ties break on the best rank in either list, then on chunk ID.
func mergeRRF(lexical, vector []SearchHit, limit int) []SearchHit {
	scores := make(map[string]*fusedHit, len(lexical)+len(vector))
	add := func(hits []SearchHit) {
		for rank, h := range hits {
			s := 1.0 / float64(rrfConstant+rank+1)
			if f, ok := scores[h.ID]; ok {
				f.score += s
				if rank < f.best {
					f.hit, f.best = h, rank
				}
				continue
			}
			scores[h.ID] = &fusedHit{hit: h, score: s, best: rank}
		}
	}
	add(lexical)
	add(vector)

	fused := make([]*fusedHit, 0, len(scores))
	for _, f := range scores {
		fused = append(fused, f)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		if fused[i].best != fused[j].best {
			return fused[i].best < fused[j].best
		}
		return fused[i].hit.ID < fused[j].hit.ID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	out := make([]SearchHit, len(fused))
	for i, f := range fused {
		out[i] = f.hit
		out[i].Score = f.score
	}
	return out
}
