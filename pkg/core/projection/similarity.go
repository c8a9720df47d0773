// Package projection implements the anchor-relative projection of node
// embeddings onto a fixed 2D reference layout.
//
// For every query node and snapshot the projector scores the query against
// the reference nodes' embeddings at that same snapshot, keeps the K most
// similar reference nodes, and places the query at the centroid of their
// fixed layout positions, blended with its own layout position when the
// query is itself a reference node.
package projection

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/dygetviz/pkg/core/distance"
	"github.com/sanonone/dygetviz/pkg/core/layout"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
)

// SimilarityIndex computes cosine similarities between query embeddings and
// the reference embeddings at a given snapshot. Reference embeddings are read
// from Z at the requested snapshot, not at the reference snapshot: the layout
// is fixed but the embeddings move.
type SimilarityIndex struct {
	z    *tensor.Embeddings
	refs *layout.IndexMap
}

// NewSimilarityIndex binds an index to the embedding tensor and the reference set.
func NewSimilarityIndex(z *tensor.Embeddings, refs *layout.IndexMap) *SimilarityIndex {
	return &SimilarityIndex{z: z, refs: refs}
}

// NumReferences returns R.
func (si *SimilarityIndex) NumReferences() int { return si.refs.Len() }

// Similarity returns the Q×R matrix of cosine similarities between the given
// global nodes and every reference node, all read at snapshot.
func (si *SimilarityIndex) Similarity(queries []layout.GlobalIdx, snapshot int) (*mat.Dense, error) {
	if err := si.z.CheckSnapshot(snapshot); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("similarity: no query nodes")
	}
	dim := si.z.Dim()
	q := mat.NewDense(len(queries), dim, nil)
	for i, g := range queries {
		v, err := si.z.Vector(snapshot, int(g))
		if err != nil {
			return nil, fmt.Errorf("similarity: query %d: %w", i, err)
		}
		distance.NormalizeInto(q.RawRowView(i), v)
	}
	return si.product(q, snapshot)
}

// SimilarityVectors is Similarity for raw query vectors that are not part of Z.
func (si *SimilarityIndex) SimilarityVectors(queries [][]float32, snapshot int) (*mat.Dense, error) {
	if err := si.z.CheckSnapshot(snapshot); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("similarity: no query vectors")
	}
	dim := si.z.Dim()
	q := mat.NewDense(len(queries), dim, nil)
	for i, v := range queries {
		if len(v) != dim {
			return nil, fmt.Errorf("similarity: query %d has dim %d, want %d: %w", i, len(v), dim, distance.ErrLengthMismatch)
		}
		distance.NormalizeInto(q.RawRowView(i), v)
	}
	return si.product(q, snapshot)
}

// product multiplies the normalised query rows with the normalised reference
// rows at snapshot. Zero rows stay zero, so their similarities are exactly 0.
func (si *SimilarityIndex) product(q *mat.Dense, snapshot int) (*mat.Dense, error) {
	ref, err := si.referenceMatrix(snapshot)
	if err != nil {
		return nil, err
	}
	rows, _ := q.Dims()
	out := mat.NewDense(rows, si.refs.Len(), nil)
	out.Mul(q, ref.T())
	out.Apply(func(_, _ int, v float64) float64 { return distance.Clamp(v) }, out)
	return out, nil
}

// referenceMatrix builds the R×D matrix of normalised reference embeddings at snapshot.
func (si *SimilarityIndex) referenceMatrix(snapshot int) (*mat.Dense, error) {
	ref := mat.NewDense(si.refs.Len(), si.z.Dim(), nil)
	for r, g := range si.refs.GlobalIndices() {
		v, err := si.z.Vector(snapshot, int(g))
		if err != nil {
			return nil, fmt.Errorf("similarity: reference %d: %w", r, err)
		}
		distance.NormalizeInto(ref.RawRowView(r), v)
	}
	return ref, nil
}
