// Package export writes projected coordinates for the rendering layer.
//
// Every engine.Result becomes a Document: the fixed background of reference
// nodes plus one ordered point list per projected node.
package export

import (
	"time"

	"github.com/sanonone/dygetviz/pkg/engine"
)

// PointRecord is one trajectory point as exported.
type PointRecord struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Snapshot     int     `json:"idx_snapshot"`
	SnapshotName string  `json:"snapshot_name"`
	DisplayName  string  `json:"display_name"`
}

// TrajectoryRecord is the exported trajectory of one node.
type TrajectoryRecord struct {
	Node       string        `json:"node"`
	Annotation string        `json:"annotation,omitempty"`
	Label      string        `json:"label"`
	Points     []PointRecord `json:"points"`
}

// BackgroundRecord is one reference node in the fixed frame.
type BackgroundRecord struct {
	Node string  `json:"node"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Document is the serialized form of one visualization.
type Document struct {
	RunID             string             `json:"run_id"`
	Name              string             `json:"name"`
	Dataset           string             `json:"dataset"`
	K                 int                `json:"num_nearest_neighbors"`
	Alpha             float64            `json:"interpolation"`
	ReferenceSnapshot int                `json:"reference_snapshot"`
	SnapshotNames     []string           `json:"snapshot_names"`
	CreatedAt         string             `json:"created_at"`
	Background        []BackgroundRecord `json:"background"`
	Trajectories      []TrajectoryRecord `json:"trajectories"`
}

// NewDocument flattens a result. Trajectories keep the request's node order.
func NewDocument(r *engine.Result) *Document {
	doc := &Document{
		RunID:             r.RunID,
		Name:              r.Name,
		Dataset:           r.DatasetName,
		K:                 r.K,
		Alpha:             r.Alpha,
		ReferenceSnapshot: r.ReferenceSnapshot,
		SnapshotNames:     r.SnapshotNames,
		CreatedAt:         r.CreatedAt.Format(time.RFC3339Nano),
		Background:        make([]BackgroundRecord, len(r.Background)),
	}
	for i, e := range r.Background {
		doc.Background[i] = BackgroundRecord{Node: e.Node, X: e.X, Y: e.Y}
	}
	if r.Trajectories == nil {
		return doc
	}

	doc.Trajectories = make([]TrajectoryRecord, 0, len(r.Trajectories.Nodes))
	for _, node := range r.Trajectories.Nodes {
		tr := r.Trajectories.ByNode[node]
		ann := r.Annotations[node]
		rec := TrajectoryRecord{
			Node:       node,
			Annotation: ann,
			Label:      engine.NodeLabel(node, ann),
			Points:     make([]PointRecord, len(tr)),
		}
		for i, p := range tr {
			name := ""
			if p.Snapshot < len(r.SnapshotNames) {
				name = r.SnapshotNames[p.Snapshot]
			}
			rec.Points[i] = PointRecord{
				X:            p.X,
				Y:            p.Y,
				Snapshot:     p.Snapshot,
				SnapshotName: name,
				DisplayName:  engine.DisplayName(node, p.Snapshot),
			}
		}
		doc.Trajectories = append(doc.Trajectories, rec)
	}
	return doc
}

// NumPoints counts the trajectory points in the document.
func (d *Document) NumPoints() int {
	n := 0
	for _, t := range d.Trajectories {
		n += len(t.Points)
	}
	return n
}
