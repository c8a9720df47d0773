package export

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/sanonone/dygetviz/pkg/engine"
)

// WriteSQLite writes all results into a fresh database at path.
// An existing file is replaced.
func WriteSQLite(path string, results []*engine.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := CreateSchema(db); err != nil {
		return err
	}
	for _, r := range results {
		doc := NewDocument(r)
		if err := insertDocument(db, doc); err != nil {
			return fmt.Errorf("insert %s: %w", doc.Name, err)
		}
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	slog.Info("[EXPORT] Wrote SQLite", "path", path, "runs", len(results))
	return nil
}

func insertDocument(db *sql.DB, doc *Document) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO runs (name, run_id, dataset, k, alpha, reference_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.Name, doc.RunID, doc.Dataset, doc.K, doc.Alpha, doc.ReferenceSnapshot, doc.CreatedAt); err != nil {
		return err
	}

	bg, err := tx.Prepare(`INSERT INTO background (run_name, node, x, y) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer bg.Close()
	for _, b := range doc.Background {
		if _, err := bg.Exec(doc.Name, b.Node, b.X, b.Y); err != nil {
			return fmt.Errorf("insert background %s: %w", b.Node, err)
		}
	}

	pt, err := tx.Prepare(`
		INSERT INTO trajectory (run_name, node, idx, snapshot, snapshot_name, x, y, display_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer pt.Close()
	lb, err := tx.Prepare(`INSERT INTO node_label (run_name, node, annotation, label) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer lb.Close()
	for _, t := range doc.Trajectories {
		if _, err := lb.Exec(doc.Name, t.Node, t.Annotation, t.Label); err != nil {
			return fmt.Errorf("insert label %s: %w", t.Node, err)
		}
		for i, p := range t.Points {
			if _, err := pt.Exec(doc.Name, t.Node, i, p.Snapshot, p.SnapshotName, p.X, p.Y, p.DisplayName); err != nil {
				return fmt.Errorf("insert point %s: %w", p.DisplayName, err)
			}
		}
	}

	return tx.Commit()
}
