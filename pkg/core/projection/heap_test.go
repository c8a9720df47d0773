package projection

import (
	"container/heap"
	"testing"

	"github.com/sanonone/dygetviz/pkg/core/types"
)

func TestWorstHeapCorrectness(t *testing.T) {
	candidates := []types.Candidate{
		{Ref: 1, Similarity: 0.5},
		{Ref: 2, Similarity: 0.2},
		{Ref: 3, Similarity: 0.8},
		{Ref: 4, Similarity: 0.2}, // Same similarity as Ref 2, ranks after it
	}

	h := new(worstHeap)
	for _, c := range candidates {
		heap.Push(h, c)
	}

	// The worst candidate must be at the top
	expectedOrder := []int{4, 2, 1, 3}

	for i, expectedRef := range expectedOrder {
		c := heap.Pop(h).(types.Candidate)
		if c.Ref != expectedRef {
			t.Errorf("Pop %d: got ref %d, want %d", i, c.Ref, expectedRef)
		}
	}
}

func TestTopN(t *testing.T) {
	sims := []float64{0.1, 0.9, 0.5, 0.9, -0.3}

	got := topN(sims, 3)
	want := []int{1, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, r := range want {
		if got[i].Ref != r {
			t.Errorf("rank %d: got ref %d, want %d", i, got[i].Ref, r)
		}
	}

	if all := topN(sims, 10); len(all) != len(sims) {
		t.Errorf("n > len should return every candidate, got %d", len(all))
	}
	if none := topN(sims, 0); none != nil {
		t.Errorf("n = 0 should return nil, got %v", none)
	}
}

func TestTopNTiesAreStable(t *testing.T) {
	sims := []float64{0.5, 0.5, 0.5, 0.5}
	for run := 0; run < 5; run++ {
		got := topN(sims, 2)
		if got[0].Ref != 0 || got[1].Ref != 1 {
			t.Fatalf("run %d: ties must resolve to the lowest indices, got %+v", run, got)
		}
	}
}
