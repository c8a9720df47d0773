// Package config holds the run configuration of a dygetviz visualization.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ExportConfig toggles the coordinate exporters.
type ExportConfig struct {
	JSON   bool `yaml:"json"`
	SQLite bool `yaml:"sqlite"`
}

// Config is the run configuration loaded from YAML.
type Config struct {
	// Input
	DatasetName string `yaml:"dataset_name"`
	DatasetPath string `yaml:"dataset_path"` // JSON or binary (.dgv)
	LayoutPath  string `yaml:"layout_path"`

	// Reference frame
	ReferenceSnapshot int      `yaml:"reference_snapshot"`
	ReferenceNodes    []string `yaml:"reference_nodes"` // defaults to every node in the layout
	StrictReference   bool     `yaml:"strict_reference"`

	// Projection
	ProjectedNodes      []string `yaml:"projected_nodes"`
	Snapshots           []int    `yaml:"snapshots"` // empty means all
	NumNearestNeighbors []int    `yaml:"num_nearest_neighbors"`
	Interpolation       float64  `yaml:"interpolation"` // alpha, 0..1
	SnapshotNames       []string `yaml:"snapshot_names"`
	Workers             int      `yaml:"workers"`

	// Output
	OutputDir string       `yaml:"output_dir"`
	Export    ExportConfig `yaml:"export"`

	// Observability
	LogLevel    string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat   string `yaml:"log_format"` // text, json
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns the settings used by the original experiments.
func DefaultConfig() Config {
	return Config{
		NumNearestNeighbors: []int{20},
		Interpolation:       0.2,
		Workers:             runtime.NumCPU(),
		OutputDir:           "outputs",
		Export:              ExportConfig{JSON: true, SQLite: true},
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadConfig reads the YAML configuration file using strict parsing.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields that can be checked without loading the dataset.
func (c Config) Validate() error {
	if c.DatasetPath == "" {
		return fmt.Errorf("%w: dataset_path is required", ErrInvalidConfig)
	}
	if c.LayoutPath == "" {
		return fmt.Errorf("%w: layout_path is required", ErrInvalidConfig)
	}
	// dataset_name becomes an output file stem.
	if strings.ContainsAny(c.DatasetName, `/\`) || c.DatasetName == "." || c.DatasetName == ".." {
		return fmt.Errorf("%w: dataset_name %q must not contain path separators", ErrInvalidConfig, c.DatasetName)
	}
	if c.ReferenceSnapshot < 0 {
		return fmt.Errorf("%w: reference_snapshot must be >= 0, got %d", ErrInvalidConfig, c.ReferenceSnapshot)
	}
	if len(c.ProjectedNodes) == 0 {
		return fmt.Errorf("%w: projected_nodes is empty", ErrInvalidConfig)
	}
	if len(c.NumNearestNeighbors) == 0 {
		return fmt.Errorf("%w: num_nearest_neighbors is empty", ErrInvalidConfig)
	}
	for _, k := range c.NumNearestNeighbors {
		if k < 1 {
			return fmt.Errorf("%w: num_nearest_neighbors must be >= 1, got %d", ErrInvalidConfig, k)
		}
	}
	if math.IsNaN(c.Interpolation) || c.Interpolation < 0 || c.Interpolation > 1 {
		return fmt.Errorf("%w: interpolation must be in [0, 1], got %v", ErrInvalidConfig, c.Interpolation)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if (c.Export.JSON || c.Export.SQLite) && c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir is required when an exporter is enabled", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// SlogLevel maps log_level onto a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
}
