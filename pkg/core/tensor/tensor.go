// Package tensor holds the read-only inputs of a projection run: the node
// index, the per-snapshot embedding tensor Z and the presence matrix P.
//
// All three are built once by a loader and never mutated afterwards, so they
// can be shared across goroutines without locking.
package tensor

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownNode is returned when a node name has no global index.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateNode is returned when a node name appears twice in the index.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrSnapshotOutOfRange is returned for a snapshot index outside [0, NumSnapshots).
	ErrSnapshotOutOfRange = errors.New("snapshot out of range")
	// ErrNodeOutOfRange is returned for a global index outside [0, NumNodes).
	ErrNodeOutOfRange = errors.New("node index out of range")
	// ErrShapeMismatch is returned when buffers do not match the declared shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNonFinite is returned when an embedding holds NaN or ±Inf.
	ErrNonFinite = errors.New("non-finite embedding value")
)

// NodeIndex is the stable bijection between node names and dense global indices.
type NodeIndex struct {
	names []string
	index map[string]int
}

// NewNodeIndex assigns global index i to names[i].
func NewNodeIndex(names []string) (*NodeIndex, error) {
	ni := &NodeIndex{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	copy(ni.names, names)
	for i, n := range names {
		if _, dup := ni.index[n]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, n)
		}
		ni.index[n] = i
	}
	return ni, nil
}

// Len returns the number of nodes.
func (ni *NodeIndex) Len() int { return len(ni.names) }

// Index returns the global index of a node.
func (ni *NodeIndex) Index(name string) (int, bool) {
	i, ok := ni.index[name]
	return i, ok
}

// Lookup is Index returning ErrUnknownNode for a missing name.
func (ni *NodeIndex) Lookup(name string) (int, error) {
	i, ok := ni.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	return i, nil
}

// Name returns the node name at a global index.
func (ni *NodeIndex) Name(i int) string {
	if i < 0 || i >= len(ni.names) {
		return ""
	}
	return ni.names[i]
}

// Names returns a copy of all node names in index order.
func (ni *NodeIndex) Names() []string {
	out := make([]string, len(ni.names))
	copy(out, ni.names)
	return out
}

// Embeddings is the tensor Z of shape (snapshots, nodes, dim), stored row-major.
type Embeddings struct {
	data         []float32
	numSnapshots int
	numNodes     int
	dim          int
}

// NewEmbeddings wraps a flat buffer. The buffer is owned by the tensor afterwards.
// NaN and ±Inf values are rejected with ErrNonFinite.
func NewEmbeddings(data []float32, numSnapshots, numNodes, dim int) (*Embeddings, error) {
	if numSnapshots <= 0 || numNodes <= 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: invalid shape (%d, %d, %d)", ErrShapeMismatch, numSnapshots, numNodes, dim)
	}
	if len(data) != numSnapshots*numNodes*dim {
		return nil, fmt.Errorf("%w: buffer has %d values, shape (%d, %d, %d) needs %d",
			ErrShapeMismatch, len(data), numSnapshots, numNodes, dim, numSnapshots*numNodes*dim)
	}
	for i, v := range data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			s, rest := i/(numNodes*dim), i%(numNodes*dim)
			return nil, fmt.Errorf("%w: %v at snapshot %d node %d component %d",
				ErrNonFinite, v, s, rest/dim, rest%dim)
		}
	}
	return &Embeddings{data: data, numSnapshots: numSnapshots, numNodes: numNodes, dim: dim}, nil
}

// EmbeddingsFromRows builds Z from rows[s][i] vectors.
func EmbeddingsFromRows(rows [][][]float32) (*Embeddings, error) {
	if len(rows) == 0 || len(rows[0]) == 0 || len(rows[0][0]) == 0 {
		return nil, fmt.Errorf("%w: empty tensor", ErrShapeMismatch)
	}
	s, n, d := len(rows), len(rows[0]), len(rows[0][0])
	data := make([]float32, 0, s*n*d)
	for si, snap := range rows {
		if len(snap) != n {
			return nil, fmt.Errorf("%w: snapshot %d has %d nodes, want %d", ErrShapeMismatch, si, len(snap), n)
		}
		for ni, v := range snap {
			if len(v) != d {
				return nil, fmt.Errorf("%w: snapshot %d node %d has dim %d, want %d", ErrShapeMismatch, si, ni, len(v), d)
			}
			data = append(data, v...)
		}
	}
	return NewEmbeddings(data, s, n, d)
}

// NumSnapshots returns the snapshot axis length.
func (z *Embeddings) NumSnapshots() int { return z.numSnapshots }

// NumNodes returns the node axis length.
func (z *Embeddings) NumNodes() int { return z.numNodes }

// Dim returns the embedding dimension.
func (z *Embeddings) Dim() int { return z.dim }

// CheckSnapshot validates a snapshot index.
func (z *Embeddings) CheckSnapshot(s int) error {
	if s < 0 || s >= z.numSnapshots {
		return fmt.Errorf("%w: %d (have %d)", ErrSnapshotOutOfRange, s, z.numSnapshots)
	}
	return nil
}

// Vector returns Z[s, i]. The slice aliases the tensor and must not be modified.
func (z *Embeddings) Vector(s, i int) ([]float32, error) {
	if err := z.CheckSnapshot(s); err != nil {
		return nil, err
	}
	if i < 0 || i >= z.numNodes {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrNodeOutOfRange, i, z.numNodes)
	}
	off := (s*z.numNodes + i) * z.dim
	return z.data[off : off+z.dim : off+z.dim], nil
}

// Presence is the boolean matrix P of shape (snapshots, nodes).
type Presence struct {
	rows     []*BitSet
	numNodes int
}

// NewPresence creates an all-false presence matrix.
func NewPresence(numSnapshots, numNodes int) *Presence {
	p := &Presence{rows: make([]*BitSet, numSnapshots), numNodes: numNodes}
	for s := range p.rows {
		p.rows[s] = NewBitSet(numNodes)
	}
	return p
}

// PresenceFromRows wraps prebuilt snapshot bitsets.
func PresenceFromRows(rows []*BitSet, numNodes int) (*Presence, error) {
	for s, r := range rows {
		if r.Len() != numNodes {
			return nil, fmt.Errorf("%w: presence row %d has %d nodes, want %d", ErrShapeMismatch, s, r.Len(), numNodes)
		}
	}
	return &Presence{rows: rows, numNodes: numNodes}, nil
}

// PresenceFromMatrix builds P from a dense boolean matrix.
func PresenceFromMatrix(m [][]bool) (*Presence, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: empty presence matrix", ErrShapeMismatch)
	}
	p := NewPresence(len(m), len(m[0]))
	for s, row := range m {
		if len(row) != p.numNodes {
			return nil, fmt.Errorf("%w: presence row %d has %d nodes, want %d", ErrShapeMismatch, s, len(row), p.numNodes)
		}
		for i, v := range row {
			p.rows[s].Set(i, v)
		}
	}
	return p, nil
}

// PresenceFromNonZero marks a node present wherever its embedding is not the zero vector.
// This mirrors the default encoding where absent nodes carry zero embeddings.
func PresenceFromNonZero(z *Embeddings) *Presence {
	p := NewPresence(z.numSnapshots, z.numNodes)
	for s := 0; s < z.numSnapshots; s++ {
		for i := 0; i < z.numNodes; i++ {
			v, _ := z.Vector(s, i)
			for _, x := range v {
				if x != 0 {
					p.rows[s].Set(i, true)
					break
				}
			}
		}
	}
	return p
}

// Set updates P[s, i]; used only while a loader is building the matrix.
func (p *Presence) Set(s, i int, v bool) {
	if s < 0 || s >= len(p.rows) {
		return
	}
	p.rows[s].Set(i, v)
}

// Has reports P[s, i]. Out-of-range pairs are absent.
func (p *Presence) Has(s, i int) bool {
	if s < 0 || s >= len(p.rows) {
		return false
	}
	return p.rows[s].Has(i)
}

// Row returns the bitset of snapshot s.
func (p *Presence) Row(s int) *BitSet {
	if s < 0 || s >= len(p.rows) {
		return nil
	}
	return p.rows[s]
}

// NumSnapshots returns the snapshot axis length.
func (p *Presence) NumSnapshots() int { return len(p.rows) }

// NumNodes returns the node axis length.
func (p *Presence) NumNodes() int { return p.numNodes }

// Dataset bundles everything a loader produces.
type Dataset struct {
	Name          string
	Nodes         *NodeIndex
	SnapshotNames []string
	Z             *Embeddings
	P             *Presence
	// Annotations maps a node to a free-text label such as its class.
	// Nodes without an entry are unannotated.
	Annotations map[string]string
}

// Validate checks that the axes of Z, P, the node index and the snapshot names agree.
func (d *Dataset) Validate() error {
	if d.Nodes == nil || d.Z == nil || d.P == nil {
		return fmt.Errorf("%w: dataset is incomplete", ErrShapeMismatch)
	}
	if d.Nodes.Len() != d.Z.NumNodes() || d.P.NumNodes() != d.Z.NumNodes() {
		return fmt.Errorf("%w: nodes=%d z=%d presence=%d",
			ErrShapeMismatch, d.Nodes.Len(), d.Z.NumNodes(), d.P.NumNodes())
	}
	if d.P.NumSnapshots() != d.Z.NumSnapshots() {
		return fmt.Errorf("%w: z has %d snapshots, presence has %d", ErrShapeMismatch, d.Z.NumSnapshots(), d.P.NumSnapshots())
	}
	if len(d.SnapshotNames) != 0 && len(d.SnapshotNames) != d.Z.NumSnapshots() {
		return fmt.Errorf("%w: %d snapshot names for %d snapshots", ErrShapeMismatch, len(d.SnapshotNames), d.Z.NumSnapshots())
	}
	for node := range d.Annotations {
		if _, ok := d.Nodes.Index(node); !ok {
			return fmt.Errorf("%w: annotation for %q", ErrUnknownNode, node)
		}
	}
	return nil
}

// SnapshotName returns the display name of snapshot s, falling back to its index.
func (d *Dataset) SnapshotName(s int) string {
	if s >= 0 && s < len(d.SnapshotNames) {
		return d.SnapshotNames[s]
	}
	return fmt.Sprintf("%d", s)
}
