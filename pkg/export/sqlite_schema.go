package export

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is stored in the meta table.
const SchemaVersion = 2

var schema = []string{
	`CREATE TABLE runs (
		name               TEXT PRIMARY KEY,
		run_id             TEXT NOT NULL,
		dataset            TEXT NOT NULL,
		k                  INTEGER NOT NULL,
		alpha              REAL NOT NULL,
		reference_snapshot INTEGER NOT NULL,
		created_at         TEXT NOT NULL
	)`,
	`CREATE TABLE background (
		run_name TEXT NOT NULL REFERENCES runs(name),
		node     TEXT NOT NULL,
		x        REAL NOT NULL,
		y        REAL NOT NULL,
		PRIMARY KEY (run_name, node)
	)`,
	`CREATE TABLE trajectory (
		run_name      TEXT NOT NULL REFERENCES runs(name),
		node          TEXT NOT NULL,
		idx           INTEGER NOT NULL,
		snapshot      INTEGER NOT NULL,
		snapshot_name TEXT NOT NULL,
		x             REAL NOT NULL,
		y             REAL NOT NULL,
		display_name  TEXT NOT NULL,
		PRIMARY KEY (run_name, node, snapshot)
	)`,
	`CREATE INDEX idx_trajectory_node ON trajectory(run_name, node, idx)`,
	`CREATE TABLE node_label (
		run_name   TEXT NOT NULL REFERENCES runs(name),
		node       TEXT NOT NULL,
		annotation TEXT NOT NULL,
		label      TEXT NOT NULL,
		PRIMARY KEY (run_name, node)
	)`,
	`CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// CreateSchema creates all tables and indexes in an empty database.
func CreateSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	_, err := db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(SchemaVersion))
	return err
}
