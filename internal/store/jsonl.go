package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/openmotion/drivesim/internal/scene"
)

// maxSceneLine bounds a single JSONL scene document. Dense urban scenes with
// the full map run to a few megabytes.
const maxSceneLine = 64 * 1024 * 1024

// ImportScenesFromJSONL reads scene documents (one JSON object per line) from
// r and inserts them into the store. It returns the number of scenes imported.
// Blank lines are skipped; a malformed line aborts the import with its line
// number.
func ImportScenesFromJSONL(ctx context.Context, s SceneStore, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxSceneLine)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var sc scene.Scene
		if err := json.Unmarshal(raw, &sc); err != nil {
			return count, fmt.Errorf("line %d: failed to parse scene: %w", line, err)
		}
		sc.ApplyDefaults()
		if err := s.PutScene(ctx, &sc); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read scene JSONL: %w", err)
	}
	return count, nil
}

// ImportScenesFromFile imports scenes from the JSONL file at path.
func ImportScenesFromFile(ctx context.Context, s SceneStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()
	return ImportScenesFromJSONL(ctx, s, f)
}

// ExportScenesToJSONL writes every scene in the store to w, one JSON document
// per line, in dataset-index order.
func ExportScenesToJSONL(ctx context.Context, s SceneStore, w io.Writer) error {
	ids, err := s.SceneIDs(ctx)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, id := range ids {
		sc, err := s.GetScene(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to export scene %s: %w", id, err)
		}
		if err := enc.Encode(sc); err != nil {
			return fmt.Errorf("failed to encode scene %s: %w", id, err)
		}
	}
	return bw.Flush()
}
