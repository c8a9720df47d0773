package projection

import (
	"container/heap"
	"math"
	"sort"

	"github.com/sanonone/dygetviz/pkg/core/types"
)

// better reports whether a ranks ahead of b: higher similarity first, and on
// equal similarity the lower reference index first. NaN ranks last.
func better(a, b types.Candidate) bool {
	as, bs := a.Similarity, b.Similarity
	if math.IsNaN(as) {
		as = math.Inf(-1)
	}
	if math.IsNaN(bs) {
		bs = math.Inf(-1)
	}
	if as != bs {
		return as > bs
	}
	return a.Ref < b.Ref
}

// worstHeap keeps the best n candidates seen so far. The root is the worst of
// them, so it is the one replaced when a better candidate arrives.
type worstHeap []types.Candidate

func (h worstHeap) Len() int           { return len(h) }
func (h worstHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }

func (h *worstHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// topN returns the n best-ranked entries of sims as candidates, best first.
// The order is fully determined by (similarity desc, reference index asc).
func topN(sims []float64, n int) []types.Candidate {
	if n > len(sims) {
		n = len(sims)
	}
	if n <= 0 {
		return nil
	}
	h := make(worstHeap, 0, n+1)
	for r, s := range sims {
		c := types.Candidate{Ref: r, Similarity: s}
		if h.Len() < n {
			heap.Push(&h, c)
			continue
		}
		if better(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	out := []types.Candidate(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}
