package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sanonone/dygetviz/pkg/config"
	"github.com/sanonone/dygetviz/pkg/core/distance"
	"github.com/sanonone/dygetviz/pkg/engine"
	"github.com/sanonone/dygetviz/pkg/export"
	"github.com/sanonone/dygetviz/pkg/loader"
)

const dataset = `{
  "name": "toy",
  "nodes": ["r0", "r1", "r2", "q"],
  "snapshot_names": ["2001", "2002"],
  "embeddings": [
    [[1, 0, 0], [0, 1, 0], [0, 0, 1], [1, 1, 0]],
    [[1, 0, 0], [0, 1, 0], [0, 0, 1], [0, 0, 0]]
  ]
}`

const referenceLayout = `{"r0": [0, 0], "r1": [1, 0], "r2": [0, 1]}`

func setup(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	cfg := config.DefaultConfig()
	cfg.DatasetPath = write("toy.json", dataset)
	cfg.LayoutPath = write("layout.json", referenceLayout)
	cfg.ProjectedNodes = []string{"q", "r1"}
	cfg.NumNearestNeighbors = []int{2}
	cfg.Interpolation = 0.5
	cfg.OutputDir = filepath.Join(dir, "out")
	return cfg
}

func TestRun(t *testing.T) {
	cfg := setup(t)
	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Name != "toy_nn2_interpolation0.5_snapshot0" {
		t.Errorf("name = %q", r.Name)
	}
	q := r.Trajectories.ByNode["q"]
	if len(q) != 1 || q[0].X != 0.5 || q[0].Y != 0 {
		t.Errorf("q trajectory = %+v, want single point (0.5, 0)", q)
	}

	doc, err := export.ReadJSON(filepath.Join(cfg.OutputDir, r.Name+".json"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.NumPoints() != r.Trajectories.NumPoints() {
		t.Errorf("exported %d points, assembled %d", doc.NumPoints(), r.Trajectories.NumPoints())
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "toy.sqlite3")); err != nil {
		t.Errorf("sqlite export missing: %v", err)
	}
}

func TestRunSnapshotNameOverride(t *testing.T) {
	cfg := setup(t)
	cfg.Export = config.ExportConfig{}
	cfg.SnapshotNames = []string{"jan", "feb"}
	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].SnapshotNames[1] != "feb" {
		t.Errorf("snapshot names = %v", results[0].SnapshotNames)
	}

	cfg.SnapshotNames = []string{"only-one"}
	if _, err := Run(context.Background(), cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunStrictReference(t *testing.T) {
	cfg := setup(t)
	cfg.Export = config.ExportConfig{}
	// q is placed in the layout but has a zero embedding at snapshot 1.
	cfg.LayoutPath = filepath.Join(t.TempDir(), "layout.json")
	if err := os.WriteFile(cfg.LayoutPath, []byte(`{"r0": [0, 0], "r1": [1, 0], "r2": [0, 1], "q": [1, 1]}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.ReferenceSnapshot = 1
	cfg.ProjectedNodes = []string{"r1"}

	cfg.StrictReference = true
	if _, err := Run(context.Background(), cfg); !errors.Is(err, engine.ErrReferenceAbsent) {
		t.Fatalf("expected ErrReferenceAbsent, got %v", err)
	}

	cfg.StrictReference = false
	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("non-strict run should only warn, got %v", err)
	}
}

func TestRunUnknownReference(t *testing.T) {
	cfg := setup(t)
	cfg.ReferenceNodes = []string{"r0", "nobody"}
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for a reference node without layout position")
	}
}

func TestPack(t *testing.T) {
	cfg := setup(t)
	out := filepath.Join(t.TempDir(), "toy.dgv")
	if err := Pack(cfg.DatasetPath, out, distance.Float16); err != nil {
		t.Fatal(err)
	}
	ds, err := loader.LoadDataset(out)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Name != "toy" || ds.P.Has(1, 3) {
		t.Errorf("packed dataset lost data: name=%q", ds.Name)
	}

	// The packed file runs the same as the JSON source.
	cfg.DatasetPath = out
	cfg.Export = config.ExportConfig{}
	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := results[0].Trajectories.ByNode["q"]; len(got) != 1 {
		t.Errorf("q trajectory = %+v", got)
	}
}
