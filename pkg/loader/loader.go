// Package loader reads datasets and reference layouts from disk.
//
// Datasets come either as the framed binary format written by
// persistence.WriteFile or as JSON:
//
//	{
//	  "name": "toy",
//	  "nodes": ["a", "b"],
//	  "snapshot_names": ["2001", "2002"],
//	  "embeddings": [[[...], [...]], [[...], [...]]],
//	  "presence": [[true, true], [true, false]],
//	  "annotations": {"a": "Fraud"}
//	}
//
// When presence is omitted a node is present wherever its embedding is non-zero.
// Annotations are optional.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/core/types"
	"github.com/sanonone/dygetviz/pkg/persistence"
	"github.com/sanonone/dygetviz/pkg/storage/mmap"
)

// ErrEmptyLayout is returned when a layout file holds no entries.
var ErrEmptyLayout = errors.New("layout file has no entries")

type jsonDataset struct {
	Name          string            `json:"name"`
	Nodes         []string          `json:"nodes"`
	SnapshotNames []string          `json:"snapshot_names"`
	Embeddings    [][][]float32     `json:"embeddings"`
	Presence      [][]bool          `json:"presence"`
	Annotations   map[string]string `json:"annotations"`
}

// LoadDataset reads a dataset, detecting the binary format by its magic byte.
func LoadDataset(path string) (*tensor.Dataset, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer m.Close()

	if len(m.Data) > 0 && m.Data[0] == persistence.MagicByte {
		slog.Debug("[LOADER] Decoding binary dataset", "path", path, "bytes", m.Size())
		ds, err := persistence.Decode(bytes.NewReader(m.Data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return ds, nil
	}

	slog.Debug("[LOADER] Parsing JSON dataset", "path", path, "bytes", m.Size())
	return ParseDataset(m.Data)
}

// ParseDataset decodes a JSON dataset document.
func ParseDataset(data []byte) (*tensor.Dataset, error) {
	var raw jsonDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	z, err := tensor.EmbeddingsFromRows(raw.Embeddings)
	if err != nil {
		return nil, err
	}
	nodes, err := tensor.NewNodeIndex(raw.Nodes)
	if err != nil {
		return nil, err
	}

	var p *tensor.Presence
	if raw.Presence != nil {
		if p, err = tensor.PresenceFromMatrix(raw.Presence); err != nil {
			return nil, err
		}
	} else {
		p = tensor.PresenceFromNonZero(z)
	}

	ds := &tensor.Dataset{
		Name:          raw.Name,
		Nodes:         nodes,
		SnapshotNames: raw.SnapshotNames,
		Z:             z,
		P:             p,
		Annotations:   raw.Annotations,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadLayout reads a reference layout. Two shapes are accepted: an object
// mapping node to [x, y], or a list of {"node", "x", "y"} entries. Object
// entries are returned sorted by node, list entries keep file order.
func LoadLayout(path string) ([]types.LayoutEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes a layout document; see LoadLayout.
func ParseLayout(data []byte) ([]types.LayoutEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyLayout
	}

	var entries []types.LayoutEntry
	if data[0] == '[' {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse layout: %w", err)
		}
	} else {
		var byNode map[string][2]float64
		if err := json.Unmarshal(data, &byNode); err != nil {
			return nil, fmt.Errorf("parse layout: %w", err)
		}
		entries = make([]types.LayoutEntry, 0, len(byNode))
		for node, xy := range byNode {
			entries = append(entries, types.LayoutEntry{Node: node, X: xy[0], Y: xy[1]})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Node < entries[j].Node })
	}

	if len(entries) == 0 {
		return nil, ErrEmptyLayout
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Node]; dup {
			return nil, fmt.Errorf("%w: %q", tensor.ErrDuplicateNode, e.Node)
		}
		seen[e.Node] = struct{}{}
	}
	return entries, nil
}

// Points splits layout entries into node names and positions, in order.
func Points(entries []types.LayoutEntry) ([]string, []types.Point) {
	names := make([]string, len(entries))
	pts := make([]types.Point, len(entries))
	for i, e := range entries {
		names[i] = e.Node
		pts[i] = types.Point{X: e.X, Y: e.Y}
	}
	return names, pts
}

// Select returns the positions of the named nodes, in the given order.
func Select(entries []types.LayoutEntry, nodes []string) ([]types.Point, error) {
	byNode := make(map[string]types.Point, len(entries))
	for _, e := range entries {
		byNode[e.Node] = types.Point{X: e.X, Y: e.Y}
	}
	pts := make([]types.Point, len(nodes))
	for i, n := range nodes {
		p, ok := byNode[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q has no layout position", tensor.ErrUnknownNode, n)
		}
		pts[i] = p
	}
	return pts, nil
}
