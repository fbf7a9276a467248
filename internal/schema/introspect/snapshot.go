package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zero-models/zerogen/internal/schema"
)

// SnapshotExtractor reads schema data from a JSON snapshot file, the format
// written by the schema dump command. Snapshots carry relationships and
// patterns explicitly, so nothing is derived here: the file is the truth.
type SnapshotExtractor struct {
	path string
}

// NewSnapshotExtractor creates an extractor for the given snapshot path.
func NewSnapshotExtractor(path string) *SnapshotExtractor {
	return &SnapshotExtractor{path: path}
}

// ExtractSchema parses the snapshot. Structural problems (missing
// collections, dangling references) are left for schema.Validate so that
// snapshot and live extractions fail the same way.
func (e *SnapshotExtractor) ExtractSchema(ctx context.Context) (*schema.SchemaData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("reading schema snapshot: %w", err)
	}

	var data schema.SchemaData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing schema snapshot %s: %w", e.path, err)
	}

	return &data, nil
}

// WriteSnapshot serializes schema data to the snapshot format at path.
// Used by the schema dump command to freeze a live database for offline runs.
func WriteSnapshot(path string, data *schema.SchemaData) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema snapshot: %w", err)
	}
	out = append(out, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing schema snapshot: %w", err)
	}
	return nil
}
