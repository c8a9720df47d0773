// Package pipeline wires loading, projection and export into one run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sanonone/dygetviz/pkg/config"
	"github.com/sanonone/dygetviz/pkg/core/distance"
	"github.com/sanonone/dygetviz/pkg/core/layout"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
	"github.com/sanonone/dygetviz/pkg/engine"
	"github.com/sanonone/dygetviz/pkg/export"
	"github.com/sanonone/dygetviz/pkg/loader"
	"github.com/sanonone/dygetviz/pkg/persistence"
)

// Inputs is what a run needs from disk.
type Inputs struct {
	Dataset *tensor.Dataset
	Layout  *layout.ReferenceLayout
	Name    string
}

// Load reads the dataset and layout named by cfg and builds the reference frame.
func Load(cfg config.Config) (*Inputs, error) {
	start := time.Now()
	ds, err := loader.LoadDataset(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	if len(cfg.SnapshotNames) > 0 {
		if len(cfg.SnapshotNames) != ds.Z.NumSnapshots() {
			return nil, fmt.Errorf("%w: %d snapshot_names for %d snapshots",
				config.ErrInvalidConfig, len(cfg.SnapshotNames), ds.Z.NumSnapshots())
		}
		ds.SnapshotNames = cfg.SnapshotNames
	}

	name := cfg.DatasetName
	if name == "" {
		name = ds.Name
	}
	if name == "" {
		name = filepath.Base(cfg.DatasetPath)
	}

	entries, err := loader.LoadLayout(cfg.LayoutPath)
	if err != nil {
		return nil, err
	}
	refs := cfg.ReferenceNodes
	if len(refs) == 0 {
		refs, _ = loader.Points(entries)
	}
	coords, err := loader.Select(entries, refs)
	if err != nil {
		return nil, err
	}
	l, err := layout.FromDataset(ds, cfg.ReferenceSnapshot, refs, coords)
	if err != nil {
		return nil, fmt.Errorf("build reference layout: %w", err)
	}

	slog.Info("[PIPELINE] Inputs loaded",
		"dataset", name,
		"snapshots", ds.Z.NumSnapshots(),
		"nodes", ds.Z.NumNodes(),
		"dim", ds.Z.Dim(),
		"references", l.Len(),
		"elapsed", time.Since(start))
	return &Inputs{Dataset: ds, Layout: l, Name: name}, nil
}

// Run loads the inputs, sweeps every configured K and writes the enabled exports.
func Run(ctx context.Context, cfg config.Config) ([]*engine.Result, error) {
	in, err := Load(cfg)
	if err != nil {
		return nil, err
	}

	req := engine.Request{
		DatasetName:     in.Name,
		Nodes:           cfg.ProjectedNodes,
		Snapshots:       cfg.Snapshots,
		NeighborCounts:  cfg.NumNearestNeighbors,
		Alpha:           cfg.Interpolation,
		StrictReference: cfg.StrictReference,
	}
	results, err := engine.Sweep(ctx, in.Dataset, in.Layout, req, engine.Options{Workers: cfg.Workers})
	if err != nil {
		return nil, err
	}

	if cfg.Export.JSON {
		if _, err := export.WriteJSON(cfg.OutputDir, results); err != nil {
			return results, fmt.Errorf("json export: %w", err)
		}
	}
	if cfg.Export.SQLite {
		path := filepath.Join(cfg.OutputDir, export.FileStem(in.Name)+".sqlite3")
		if err := export.WriteSQLite(path, results); err != nil {
			return results, fmt.Errorf("sqlite export: %w", err)
		}
	}
	return results, nil
}

// Pack converts a dataset (JSON or binary) into the framed binary format.
func Pack(in, out string, prec distance.PrecisionType) error {
	ds, err := loader.LoadDataset(in)
	if err != nil {
		return err
	}
	if err := persistence.WriteFile(out, ds, prec); err != nil {
		return err
	}
	slog.Info("[PIPELINE] Dataset packed", "in", in, "out", out, "precision", prec)
	return nil
}
