// Package layout holds the fixed reference frame of a projection run: the set
// of reference (anchor) nodes, their mapping between the global and reference
// index spaces, and the 2D coordinates an external dimensionality reduction
// assigned to them at the reference snapshot.
//
// Nothing in this package changes after construction.
package layout

import (
	"errors"
	"fmt"

	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/core/types"
)

// GlobalIdx indexes a node in the space of all nodes of the dataset.
type GlobalIdx int

// RefIdx indexes a node in the reference space 0..R-1.
type RefIdx int

var (
	// ErrOutOfRange is returned for a reference index >= R.
	ErrOutOfRange = errors.New("reference index out of range")
	// ErrEmptyReferenceSet is returned when building a layout with no reference nodes.
	ErrEmptyReferenceSet = errors.New("empty reference set")
	// ErrDuplicateReference is returned when a node is listed twice as reference.
	ErrDuplicateReference = errors.New("duplicate reference node")
	// ErrLayoutMismatch is returned when coordinates, embeddings and nodes disagree in count.
	ErrLayoutMismatch = errors.New("layout size mismatch")
)

// IndexMap is the bijection between reference indices and the global indices of
// the same nodes. Every reference node exists in the global space.
type IndexMap struct {
	nodes     []string
	toGlobal  []GlobalIdx
	toRef     map[GlobalIdx]RefIdx
	numGlobal int
}

// NewIndexMap assigns reference index r to reference[r], resolving each name
// against the global node index.
func NewIndexMap(global *tensor.NodeIndex, reference []string) (*IndexMap, error) {
	if len(reference) == 0 {
		return nil, ErrEmptyReferenceSet
	}
	m := &IndexMap{
		nodes:     make([]string, len(reference)),
		toGlobal:  make([]GlobalIdx, len(reference)),
		toRef:     make(map[GlobalIdx]RefIdx, len(reference)),
		numGlobal: global.Len(),
	}
	for r, name := range reference {
		g, err := global.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("reference node %d: %w", r, err)
		}
		if _, dup := m.toRef[GlobalIdx(g)]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateReference, name)
		}
		m.nodes[r] = name
		m.toGlobal[r] = GlobalIdx(g)
		m.toRef[GlobalIdx(g)] = RefIdx(r)
	}
	return m, nil
}

// Len returns R, the number of reference nodes.
func (m *IndexMap) Len() int { return len(m.toGlobal) }

// Global returns the global index of reference node r.
func (m *IndexMap) Global(r RefIdx) (GlobalIdx, error) {
	if r < 0 || int(r) >= len(m.toGlobal) {
		return 0, fmt.Errorf("%w: %d (R=%d)", ErrOutOfRange, r, len(m.toGlobal))
	}
	return m.toGlobal[r], nil
}

// Reference returns the reference index of a global node, if it is a reference node.
func (m *IndexMap) Reference(g GlobalIdx) (RefIdx, bool) {
	r, ok := m.toRef[g]
	return r, ok
}

// Node returns the name of reference node r.
func (m *IndexMap) Node(r RefIdx) string {
	if r < 0 || int(r) >= len(m.nodes) {
		return ""
	}
	return m.nodes[r]
}

// GlobalIndices returns the global index of every reference node, in reference order.
func (m *IndexMap) GlobalIndices() []GlobalIdx {
	out := make([]GlobalIdx, len(m.toGlobal))
	copy(out, m.toGlobal)
	return out
}

// ReferenceLayout is the immutable background frame: for each reference index,
// its embedding at the reference snapshot and its 2D coordinate.
type ReferenceLayout struct {
	index      *IndexMap
	snapshot   int
	embeddings [][]float32
	coords     []types.Point
}

// New builds a layout. embeddings[r] and coords[r] belong to reference node r of idx.
func New(idx *IndexMap, snapshot int, embeddings [][]float32, coords []types.Point) (*ReferenceLayout, error) {
	if idx == nil || idx.Len() == 0 || len(coords) == 0 {
		return nil, ErrEmptyReferenceSet
	}
	if len(coords) != idx.Len() || len(embeddings) != idx.Len() {
		return nil, fmt.Errorf("%w: %d reference nodes, %d embeddings, %d coordinates",
			ErrLayoutMismatch, idx.Len(), len(embeddings), len(coords))
	}
	l := &ReferenceLayout{
		index:      idx,
		snapshot:   snapshot,
		embeddings: make([][]float32, len(embeddings)),
		coords:     make([]types.Point, len(coords)),
	}
	for r, e := range embeddings {
		l.embeddings[r] = append([]float32(nil), e...)
	}
	copy(l.coords, coords)
	return l, nil
}

// FromDataset builds a layout for the given reference nodes, reading their
// embeddings from Z at the reference snapshot.
func FromDataset(ds *tensor.Dataset, snapshot int, reference []string, coords []types.Point) (*ReferenceLayout, error) {
	idx, err := NewIndexMap(ds.Nodes, reference)
	if err != nil {
		return nil, err
	}
	if err := ds.Z.CheckSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("reference snapshot: %w", err)
	}
	embeds := make([][]float32, idx.Len())
	for r, g := range idx.toGlobal {
		v, err := ds.Z.Vector(snapshot, int(g))
		if err != nil {
			return nil, err
		}
		embeds[r] = v
	}
	return New(idx, snapshot, embeds, coords)
}

// Len returns R.
func (l *ReferenceLayout) Len() int { return len(l.coords) }

// Index returns the reference/global index map.
func (l *ReferenceLayout) Index() *IndexMap { return l.index }

// Snapshot returns the reference snapshot the layout was fit at.
func (l *ReferenceLayout) Snapshot() int { return l.snapshot }

// Position returns the fixed 2D coordinate of reference node r.
func (l *ReferenceLayout) Position(r RefIdx) (types.Point, error) {
	if r < 0 || int(r) >= len(l.coords) {
		return types.Point{}, fmt.Errorf("%w: %d (R=%d)", ErrOutOfRange, r, len(l.coords))
	}
	return l.coords[r], nil
}

// Embedding returns a copy of the embedding of reference node r at the reference snapshot.
func (l *ReferenceLayout) Embedding(r RefIdx) ([]float32, error) {
	if r < 0 || int(r) >= len(l.embeddings) {
		return nil, fmt.Errorf("%w: %d (R=%d)", ErrOutOfRange, r, len(l.embeddings))
	}
	return append([]float32(nil), l.embeddings[r]...), nil
}

// Entries lists the background frame as (node, x, y) rows, in reference order.
func (l *ReferenceLayout) Entries() []types.LayoutEntry {
	out := make([]types.LayoutEntry, len(l.coords))
	for r, p := range l.coords {
		out[r] = types.LayoutEntry{Node: l.index.Node(RefIdx(r)), X: p.X, Y: p.Y}
	}
	return out
}
