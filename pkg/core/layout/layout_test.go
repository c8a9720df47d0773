package layout

import (
	"errors"
	"testing"

	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/core/types"
)

func mustNodes(t *testing.T, names ...string) *tensor.NodeIndex {
	t.Helper()
	ni, err := tensor.NewNodeIndex(names)
	if err != nil {
		t.Fatal(err)
	}
	return ni
}

func TestIndexMap(t *testing.T) {
	global := mustNodes(t, "a", "b", "c", "d")

	m, err := NewIndexMap(global, []string{"c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if g, _ := m.Global(0); g != 2 {
		t.Errorf("Global(0) = %d, want 2", g)
	}
	if r, ok := m.Reference(0); !ok || r != 1 {
		t.Errorf("Reference(0) = %d, %v; want 1, true", r, ok)
	}
	if _, ok := m.Reference(1); ok {
		t.Error("b is not a reference node")
	}
	if _, err := m.Global(2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if m.Node(0) != "c" {
		t.Errorf("Node(0) = %q", m.Node(0))
	}

	t.Run("UnknownNode", func(t *testing.T) {
		if _, err := NewIndexMap(global, []string{"zzz"}); !errors.Is(err, tensor.ErrUnknownNode) {
			t.Errorf("expected ErrUnknownNode, got %v", err)
		}
	})
	t.Run("Duplicate", func(t *testing.T) {
		if _, err := NewIndexMap(global, []string{"a", "a"}); !errors.Is(err, ErrDuplicateReference) {
			t.Errorf("expected ErrDuplicateReference, got %v", err)
		}
	})
	t.Run("Empty", func(t *testing.T) {
		if _, err := NewIndexMap(global, nil); !errors.Is(err, ErrEmptyReferenceSet) {
			t.Errorf("expected ErrEmptyReferenceSet, got %v", err)
		}
	})
}

func TestReferenceLayout(t *testing.T) {
	global := mustNodes(t, "r0", "r1", "q")
	idx, err := NewIndexMap(global, []string{"r0", "r1"})
	if err != nil {
		t.Fatal(err)
	}
	embeds := [][]float32{{1, 0}, {0, 1}}
	coords := []types.Point{{X: 0, Y: 0}, {X: 1, Y: 2}}

	l, err := New(idx, 0, embeds, coords)
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the inputs must not leak into the layout.
	embeds[0][0] = 42
	coords[1].X = 42

	p, err := l.Position(1)
	if err != nil || p != (types.Point{X: 1, Y: 2}) {
		t.Errorf("Position(1) = %v, %v", p, err)
	}
	e, _ := l.Embedding(0)
	if e[0] != 1 {
		t.Errorf("Embedding(0) = %v, want [1 0]", e)
	}
	e[1] = 99
	if e2, _ := l.Embedding(0); e2[1] != 0 {
		t.Error("Embedding must return a copy")
	}

	if _, err := l.Position(2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := l.Embedding(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	entries := l.Entries()
	if len(entries) != 2 || entries[1].Node != "r1" || entries[1].Y != 2 {
		t.Errorf("Entries = %+v", entries)
	}

	t.Run("EmptyReferenceSet", func(t *testing.T) {
		if _, err := New(idx, 0, nil, nil); !errors.Is(err, ErrEmptyReferenceSet) {
			t.Errorf("expected ErrEmptyReferenceSet, got %v", err)
		}
	})
	t.Run("Mismatch", func(t *testing.T) {
		_, err := New(idx, 0, [][]float32{{1, 0}}, []types.Point{{}, {}})
		if !errors.Is(err, ErrLayoutMismatch) {
			t.Errorf("expected ErrLayoutMismatch, got %v", err)
		}
	})
}

func TestFromDataset(t *testing.T) {
	z, _ := tensor.EmbeddingsFromRows([][][]float32{
		{{1, 0}, {0, 1}, {1, 1}},
		{{5, 0}, {0, 5}, {1, 1}},
	})
	ds := &tensor.Dataset{Nodes: mustNodes(t, "a", "b", "c"), Z: z, P: tensor.PresenceFromNonZero(z)}

	l, err := FromDataset(ds, 1, []string{"b", "a"}, []types.Point{{X: 1}, {X: 2}})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := l.Embedding(0)
	if e[1] != 5 {
		t.Errorf("expected embedding of b at snapshot 1, got %v", e)
	}
	if l.Snapshot() != 1 {
		t.Errorf("Snapshot = %d", l.Snapshot())
	}

	if _, err := FromDataset(ds, 7, []string{"a"}, []types.Point{{}}); !errors.Is(err, tensor.ErrSnapshotOutOfRange) {
		t.Errorf("expected ErrSnapshotOutOfRange, got %v", err)
	}
}
