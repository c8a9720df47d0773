package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sanonone/dygetviz/pkg/core/distance"
	"github.com/sanonone/dygetviz/pkg/core/layout"
	"github.com/sanonone/dygetviz/pkg/core/projection"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/core/types"
	"github.com/sanonone/dygetviz/pkg/metrics"
)

// ErrReferenceAbsent is returned in strict mode when a reference node is absent
// or has a zero embedding at the reference snapshot.
var ErrReferenceAbsent = errors.New("reference node absent at reference snapshot")

// Request describes one visualization: which nodes to trace, over which
// snapshots, for which neighbor counts.
type Request struct {
	DatasetName string
	Nodes       []string
	// Snapshots to project; empty means all.
	Snapshots []int
	// NeighborCounts lists the K values to evaluate; one Result per K.
	NeighborCounts []int
	Alpha          float64
	// StrictReference fails the request when a reference node is absent at the
	// reference snapshot instead of logging a warning.
	StrictReference bool
}

// Result is the output handed to the rendering layer for one K.
type Result struct {
	RunID             string
	Name              string
	DatasetName       string
	K                 int
	Alpha             float64
	ReferenceSnapshot int
	SnapshotNames     []string
	Background        []types.LayoutEntry
	Trajectories      *Trajectories
	// Annotations of the projected nodes that carry one.
	Annotations map[string]string
	CreatedAt   time.Time
}

// DisplayName labels a trajectory point as "<node>-<snapshot>".
func DisplayName(node string, snapshot int) string {
	return node + "-" + strconv.Itoa(snapshot)
}

// NodeLabel renders a node for display: "<node> (<annotation>)", or the bare
// node when it has no annotation.
func NodeLabel(node, annotation string) string {
	if annotation == "" {
		return node
	}
	return node + " (" + annotation + ")"
}

// VisualizationName builds the stable output name of a run.
func VisualizationName(dataset string, k int, alpha float64, referenceSnapshot int) string {
	return fmt.Sprintf("%s_nn%d_interpolation%s_snapshot%d",
		dataset, k, strconv.FormatFloat(alpha, 'g', -1, 64), referenceSnapshot)
}

// CheckReference lists the reference nodes that are absent, or carry a zero
// embedding, at the layout's reference snapshot.
func CheckReference(ds *tensor.Dataset, l *layout.ReferenceLayout) []string {
	var bad []string
	for r := 0; r < l.Len(); r++ {
		g, _ := l.Index().Global(layout.RefIdx(r))
		e, _ := l.Embedding(layout.RefIdx(r))
		if !ds.P.Has(l.Snapshot(), int(g)) || distance.Norm(e) == 0 {
			bad = append(bad, l.Index().Node(layout.RefIdx(r)))
		}
	}
	return bad
}

// Sweep runs one assembly per neighbor count. All results share a run id.
func Sweep(ctx context.Context, ds *tensor.Dataset, l *layout.ReferenceLayout, req Request, opts Options) ([]*Result, error) {
	if len(req.NeighborCounts) == 0 {
		return nil, fmt.Errorf("%w: no neighbor counts requested", projection.ErrInvalidNeighborCount)
	}
	if bad := CheckReference(ds, l); len(bad) > 0 {
		if req.StrictReference {
			return nil, fmt.Errorf("%w: %v", ErrReferenceAbsent, bad)
		}
		slog.Warn("[ENGINE] Reference nodes absent at reference snapshot", "count", len(bad), "nodes", bad)
	}

	runID := uuid.New().String()
	results := make([]*Result, 0, len(req.NeighborCounts))
	for _, k := range req.NeighborCounts {
		proj, err := projection.NewNeighborProjector(ds, l, projection.Options{K: k, Alpha: req.Alpha})
		if err != nil {
			return nil, fmt.Errorf("k=%d: %w", k, err)
		}
		traj, err := NewAssembler(ds, proj, opts).Assemble(ctx, req.Nodes, req.Snapshots)
		if err != nil {
			return nil, fmt.Errorf("k=%d: %w", k, err)
		}
		metrics.TrajectoryPoints.WithLabelValues(req.DatasetName, strconv.Itoa(k)).Set(float64(traj.NumPoints()))

		names := make([]string, ds.Z.NumSnapshots())
		for s := range names {
			names[s] = ds.SnapshotName(s)
		}
		var annotations map[string]string
		for _, node := range traj.Nodes {
			if a, ok := ds.Annotations[node]; ok {
				if annotations == nil {
					annotations = make(map[string]string)
				}
				annotations[node] = a
			}
		}
		results = append(results, &Result{
			RunID:             runID,
			Name:              VisualizationName(req.DatasetName, k, req.Alpha, l.Snapshot()),
			DatasetName:       req.DatasetName,
			K:                 k,
			Alpha:             req.Alpha,
			ReferenceSnapshot: l.Snapshot(),
			SnapshotNames:     names,
			Background:        l.Entries(),
			Trajectories:      traj,
			Annotations:       annotations,
			CreatedAt:         time.Now().UTC(),
		})
	}
	return results, nil
}
