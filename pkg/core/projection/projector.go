package projection

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/sanonone/dygetviz/pkg/core/layout"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/core/types"
)

var (
	// ErrInsufficientNeighbors is returned when fewer than K reference nodes
	// remain after excluding the query itself.
	ErrInsufficientNeighbors = errors.New("insufficient neighbors")
	// ErrAbsentNode is returned when neighbors are requested for a node that is
	// not present at the snapshot.
	ErrAbsentNode = errors.New("node absent at snapshot")
	// ErrInvalidNeighborCount is returned for K < 1.
	ErrInvalidNeighborCount = errors.New("neighbor count must be >= 1")
	// ErrInvalidInterpolation is returned for an interpolation factor outside [0, 1].
	ErrInvalidInterpolation = errors.New("interpolation must be in [0, 1]")
)

// Options configures a NeighborProjector.
type Options struct {
	// K is the number of nearest reference nodes whose positions are averaged.
	K int
	// Alpha weights a reference node's own layout position against the
	// centroid of its neighbors. Ignored for non-reference nodes.
	Alpha float64
}

// Validate checks K and Alpha.
func (o Options) Validate() error {
	if o.K < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidNeighborCount, o.K)
	}
	if o.Alpha < 0 || o.Alpha > 1 || o.Alpha != o.Alpha {
		return fmt.Errorf("%w: got %v", ErrInvalidInterpolation, o.Alpha)
	}
	return nil
}

// NeighborProjector places one node at one snapshot in the reference frame.
// It reads only immutable inputs and is safe for concurrent use.
type NeighborProjector struct {
	z        *tensor.Embeddings
	presence *tensor.Presence
	layout   *layout.ReferenceLayout
	sims     *SimilarityIndex
	opts     Options
}

// NewNeighborProjector validates opts and binds the projector to its inputs.
func NewNeighborProjector(ds *tensor.Dataset, l *layout.ReferenceLayout, opts Options) (*NeighborProjector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if l == nil || l.Len() == 0 {
		return nil, layout.ErrEmptyReferenceSet
	}
	return &NeighborProjector{
		z:        ds.Z,
		presence: ds.P,
		layout:   l,
		sims:     NewSimilarityIndex(ds.Z, l.Index()),
		opts:     opts,
	}, nil
}

// Options returns the projector configuration.
func (p *NeighborProjector) Options() Options { return p.opts }

// Layout returns the reference layout the projector projects onto.
func (p *NeighborProjector) Layout() *layout.ReferenceLayout { return p.layout }

// Similarities returns the similarity index, for batched use by the assembler.
func (p *NeighborProjector) Similarities() *SimilarityIndex { return p.sims }

// Project returns the position of node at snapshot. The boolean is false when
// the node is absent at that snapshot, in which case no position exists.
func (p *NeighborProjector) Project(node layout.GlobalIdx, snapshot int) (types.Point, bool, error) {
	if !p.presence.Has(snapshot, int(node)) {
		if err := p.z.CheckSnapshot(snapshot); err != nil {
			return types.Point{}, false, err
		}
		return types.Point{}, false, nil
	}
	m, err := p.sims.Similarity([]layout.GlobalIdx{node}, snapshot)
	if err != nil {
		return types.Point{}, false, err
	}
	return p.ProjectRow(node, snapshot, m.RawRowView(0))
}

// ProjectRow is Project with the node's similarity row against all R reference
// nodes already computed, so that a caller can batch the similarity product.
func (p *NeighborProjector) ProjectRow(node layout.GlobalIdx, snapshot int, row []float64) (types.Point, bool, error) {
	if !p.presence.Has(snapshot, int(node)) {
		return types.Point{}, false, nil
	}
	neighbors, err := p.selectNeighbors(node, row)
	if err != nil {
		return types.Point{}, false, fmt.Errorf("node %d snapshot %d: %w", node, snapshot, err)
	}
	centroid, err := p.centroid(neighbors)
	if err != nil {
		return types.Point{}, false, err
	}
	self, isRef := p.layout.Index().Reference(node)
	if !isRef {
		return centroid, true, nil
	}
	own, err := p.layout.Position(self)
	if err != nil {
		return types.Point{}, false, err
	}
	return own.Scale(p.opts.Alpha).Add(centroid.Scale(1 - p.opts.Alpha)), true, nil
}

// Neighbors returns the K reference nodes selected for node at snapshot, best first.
func (p *NeighborProjector) Neighbors(node layout.GlobalIdx, snapshot int) ([]types.Candidate, error) {
	if !p.presence.Has(snapshot, int(node)) {
		return nil, fmt.Errorf("%w: node %d snapshot %d", ErrAbsentNode, node, snapshot)
	}
	m, err := p.sims.Similarity([]layout.GlobalIdx{node}, snapshot)
	if err != nil {
		return nil, err
	}
	return p.selectNeighbors(node, m.RawRowView(0))
}

// selectNeighbors takes the K+1 best reference nodes, drops the query itself
// when it is a reference node, and keeps the first K of what remains.
// K+1 are requested for non-reference nodes too, so duplicate reference
// embeddings cannot change which K are kept.
func (p *NeighborProjector) selectNeighbors(node layout.GlobalIdx, row []float64) ([]types.Candidate, error) {
	k := p.opts.K
	if len(row) != p.layout.Len() {
		return nil, fmt.Errorf("similarity row has %d entries, want %d", len(row), p.layout.Len())
	}
	candidates := topN(row, k+1)

	if self, ok := p.layout.Index().Reference(node); ok {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.Ref != int(self) {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	if len(candidates) < k {
		return nil, fmt.Errorf("%w: need %d, have %d of %d reference nodes",
			ErrInsufficientNeighbors, k, len(candidates), p.layout.Len())
	}
	return candidates[:k], nil
}

// centroid is the unweighted mean of the neighbors' layout positions.
func (p *NeighborProjector) centroid(neighbors []types.Candidate) (types.Point, error) {
	xs := make([]float64, len(neighbors))
	ys := make([]float64, len(neighbors))
	for i, c := range neighbors {
		pos, err := p.layout.Position(layout.RefIdx(c.Ref))
		if err != nil {
			return types.Point{}, err
		}
		xs[i], ys[i] = pos.X, pos.Y
	}
	n := float64(len(neighbors))
	return types.Point{X: floats.Sum(xs) / n, Y: floats.Sum(ys) / n}, nil
}
