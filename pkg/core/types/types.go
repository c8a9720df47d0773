// Package types holds the small value types shared by the projection core,
// the engine and the exporters.
package types

// Point is a position in the 2D reference frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Scale returns p scaled by f.
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

// TrajectoryPoint is one projected position of a node at a given snapshot.
type TrajectoryPoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Snapshot int     `json:"idx_snapshot"`
}

// Point drops the snapshot index.
func (tp TrajectoryPoint) Point() Point { return Point{X: tp.X, Y: tp.Y} }

// Trajectory is the ordered sequence of positions of one node.
// Snapshot indices are strictly increasing.
type Trajectory []TrajectoryPoint

// Snapshots returns the snapshot indices covered by the trajectory.
func (t Trajectory) Snapshots() []int {
	out := make([]int, len(t))
	for i, p := range t {
		out[i] = p.Snapshot
	}
	return out
}

// Candidate is a reference node scored against a query, used during neighbor selection.
type Candidate struct {
	Ref        int
	Similarity float64
}

// LayoutEntry describes a reference node in the fixed background frame.
type LayoutEntry struct {
	Node string  `json:"node"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}
