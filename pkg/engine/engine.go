// Package engine assembles per-node trajectories by driving the neighbor
// projector over every requested (node, snapshot) pair.
//
// Snapshots are processed in parallel: each worker computes one batched
// similarity product for all query nodes of its snapshot and projects them.
// Results are merged on the calling goroutine as workers finish. Each node's
// points go into a btree keyed by snapshot, so the output is ordered no matter
// which worker finishes first or how the snapshot range was given.
//
// Basic usage:
//
//	proj, err := projection.NewNeighborProjector(ds, refLayout, projection.Options{K: 10, Alpha: 0.5})
//	if err != nil {
//	    return err
//	}
//	asm := engine.NewAssembler(ds, proj, engine.DefaultOptions())
//	traj, err := asm.Assemble(ctx, []string{"alice", "bob"}, nil)
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"

	"github.com/sanonone/dygetviz/pkg/core/layout"
	"github.com/sanonone/dygetviz/pkg/core/projection"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/core/types"
	"github.com/sanonone/dygetviz/pkg/metrics"
)

var (
	// ErrEmptyTrajectory is returned when a requested node is absent at every
	// requested snapshot.
	ErrEmptyTrajectory = errors.New("empty trajectory")
	// ErrNoQueryNodes is returned when Assemble is called without nodes.
	ErrNoQueryNodes = errors.New("no query nodes")
)

// Options configures the Assembler.
type Options struct {
	// Workers bounds the number of snapshots processed concurrently.
	// Values < 1 mean runtime.NumCPU().
	Workers int
}

// DefaultOptions returns one worker per CPU.
func DefaultOptions() Options {
	return Options{Workers: runtime.NumCPU()}
}

// Assembler builds trajectories for a fixed projector.
type Assembler struct {
	ds   *tensor.Dataset
	proj *projection.NeighborProjector
	opts Options
}

// NewAssembler binds an assembler to its dataset and projector.
func NewAssembler(ds *tensor.Dataset, proj *projection.NeighborProjector, opts Options) *Assembler {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	return &Assembler{ds: ds, proj: proj, opts: opts}
}

// Trajectories maps node names to their assembled trajectories. Nodes keeps
// the request order.
type Trajectories struct {
	Nodes  []string
	ByNode map[string]types.Trajectory
}

// NumPoints returns the total number of points across all nodes.
func (t *Trajectories) NumPoints() int {
	n := 0
	for _, tr := range t.ByNode {
		n += len(tr)
	}
	return n
}

// projected is one worker output: the position of query i at the worker's snapshot.
type projected struct {
	query int
	point types.Point
}

type snapshotBatch struct {
	snapshot int
	out      []projected
}

// Assemble projects every node at every snapshot in snapshots (all snapshots
// when empty), skipping snapshots where the node is absent. Every node must end
// up with at least one point, otherwise ErrEmptyTrajectory is returned.
func (a *Assembler) Assemble(ctx context.Context, nodes []string, snapshots []int) (*Trajectories, error) {
	start := time.Now()
	k := strconv.Itoa(a.proj.Options().K)
	defer func() {
		metrics.AssemblyDuration.WithLabelValues(k).Observe(time.Since(start).Seconds())
	}()

	queries, names, err := a.resolveNodes(nodes)
	if err != nil {
		return nil, err
	}
	snaps, err := a.resolveSnapshots(snapshots)
	if err != nil {
		return nil, err
	}

	slog.Info("[ENGINE] Assembling trajectories",
		"nodes", len(queries), "snapshots", len(snaps), "k", k, "workers", a.opts.Workers)

	trees := make([]*btree.BTreeG[types.TrajectoryPoint], len(queries))
	for i := range trees {
		trees[i] = btree.NewBTreeG[types.TrajectoryPoint](func(a, b types.TrajectoryPoint) bool {
			return a.Snapshot < b.Snapshot
		})
	}

	done := make(chan snapshotBatch, a.opts.Workers)
	waitErr := make(chan error, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	go func() {
		for _, s := range snaps {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out, err := a.projectSnapshot(queries, s)
				if err != nil {
					return err
				}
				select {
				case done <- snapshotBatch{snapshot: s, out: out}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		waitErr <- g.Wait()
		close(done)
	}()

	// Batches arrive in completion order.
	for b := range done {
		for _, p := range b.out {
			trees[p.query].Set(types.TrajectoryPoint{X: p.point.X, Y: p.point.Y, Snapshot: b.snapshot})
		}
	}
	if err := <-waitErr; err != nil {
		return nil, err
	}

	result := &Trajectories{Nodes: names, ByNode: make(map[string]types.Trajectory, len(names))}
	var empty []string
	for i, name := range names {
		tr := make(types.Trajectory, 0, trees[i].Len())
		trees[i].Scan(func(p types.TrajectoryPoint) bool {
			tr = append(tr, p)
			return true
		})
		if len(tr) == 0 {
			empty = append(empty, name)
			continue
		}
		result.ByNode[name] = tr
	}
	if len(empty) > 0 {
		return nil, fmt.Errorf("%w: %s has no coordinates", ErrEmptyTrajectory, strings.Join(empty, ", "))
	}

	slog.Info("[ENGINE] Assembly complete",
		"points", result.NumPoints(), "k", k, "elapsed", time.Since(start))
	return result, nil
}

// projectSnapshot runs one batched similarity product for the queries present
// at snapshot s and projects each of them.
func (a *Assembler) projectSnapshot(queries []layout.GlobalIdx, s int) ([]projected, error) {
	start := time.Now()
	defer func() { metrics.SnapshotDuration.Observe(time.Since(start).Seconds()) }()

	present := make([]layout.GlobalIdx, 0, len(queries))
	positions := make([]int, 0, len(queries))
	for i, g := range queries {
		if a.ds.P.Has(s, int(g)) {
			present = append(present, g)
			positions = append(positions, i)
		}
	}
	metrics.ProjectionsTotal.WithLabelValues("absent").Add(float64(len(queries) - len(present)))
	if len(present) == 0 {
		return nil, nil
	}

	sims, err := a.proj.Similarities().Similarity(present, s)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", s, err)
	}

	out := make([]projected, 0, len(present))
	for row, g := range present {
		pt, ok, err := a.proj.ProjectRow(g, s, sims.RawRowView(row))
		if err != nil {
			metrics.ProjectionsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("project %q: %w", a.ds.Nodes.Name(int(g)), err)
		}
		if !ok {
			continue
		}
		metrics.ProjectionsTotal.WithLabelValues("projected").Inc()
		out = append(out, projected{query: positions[row], point: pt})
	}
	return out, nil
}

// resolveNodes maps names to global indices, dropping repeated names.
func (a *Assembler) resolveNodes(nodes []string) ([]layout.GlobalIdx, []string, error) {
	if len(nodes) == 0 {
		return nil, nil, ErrNoQueryNodes
	}
	seen := make(map[string]struct{}, len(nodes))
	queries := make([]layout.GlobalIdx, 0, len(nodes))
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		g, err := a.ds.Nodes.Lookup(n)
		if err != nil {
			return nil, nil, err
		}
		queries = append(queries, layout.GlobalIdx(g))
		names = append(names, n)
	}
	return queries, names, nil
}

// resolveSnapshots validates and dedupes the snapshot range, keeping the
// caller's order.
// An empty range means every snapshot of the dataset.
func (a *Assembler) resolveSnapshots(snapshots []int) ([]int, error) {
	if len(snapshots) == 0 {
		all := make([]int, a.ds.Z.NumSnapshots())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	out := make([]int, 0, len(snapshots))
	seen := make(map[int]struct{}, len(snapshots))
	for _, s := range snapshots {
		if err := a.ds.Z.CheckSnapshot(s); err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
