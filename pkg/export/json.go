package export

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/sanonone/dygetviz/pkg/engine"
)

// ErrReloadMismatch is returned when a written file does not read back to the
// same document.
var ErrReloadMismatch = errors.New("exported file does not match after reload")

// WriteJSON writes one <name>.json document per result into dir and returns
// the written paths.
func WriteJSON(dir string, results []*engine.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(results))
	for _, r := range results {
		doc := NewDocument(r)
		path := filepath.Join(dir, FileStem(doc.Name)+".json")
		if err := DumpAndCheck(path, doc); err != nil {
			return paths, err
		}
		slog.Info("[EXPORT] Wrote JSON", "path", path, "points", doc.NumPoints())
		paths = append(paths, path)
	}
	return paths, nil
}

// FileStem reduces name to a single path element so that output files stay
// inside their directory. Names that reduce to nothing become "dataset".
func FileStem(name string) string {
	stem := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if stem == "/" || stem == "." || stem == ".." {
		return "dataset"
	}
	return stem
}

// DumpAndCheck writes doc atomically and reads it back, failing if the
// reloaded document encodes differently.
func DumpAndCheck(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.Name, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}

	reloaded, err := ReadJSON(path)
	if err != nil {
		return err
	}
	again, err := json.MarshalIndent(reloaded, "", "  ")
	if err != nil {
		return err
	}
	if !bytes.Equal(data, again) {
		return fmt.Errorf("%w: %s", ErrReloadMismatch, path)
	}
	return nil
}

// ReadJSON loads a document written by WriteJSON.
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
