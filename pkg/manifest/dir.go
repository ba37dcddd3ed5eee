package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poi-trace/core/pkg/poierrors"
)

// WriteDir lays a manifest out on disk the way an operator ships a run to
// external storage: <dir>/manifest.json plus one <dir>/chunks/NNNN.json per
// chunk, mirroring the manifest's own chunk indices. Not part of the core
// hashing contract (§4.6 only defines the in-memory shape); this is the
// on-disk counterpart a CLI or archival job needs to hand chunks to an
// object store one file at a time.
func WriteDir(dir string, m *Manifest, chunkPayloads [][]byte) error {
	if len(chunkPayloads) != len(m.Chunks) {
		return poierrors.Input(fmt.Sprintf("expected %d chunk payloads, got %d", len(m.Chunks), len(chunkPayloads)))
	}

	chunksDir := filepath.Join(dir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return poierrors.Environmental("manifest dir", err)
	}

	manifestBytes, err := json.Marshal(m)
	if err != nil {
		return poierrors.Encoding("failed to marshal manifest: " + err.Error())
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return poierrors.Environmental("manifest dir", err)
	}

	for i, payload := range chunkPayloads {
		name := filepath.Join(chunksDir, fmt.Sprintf("%04d.json", m.Chunks[i].Index))
		if err := os.WriteFile(name, payload, 0o644); err != nil {
			return poierrors.Environmental("manifest dir", err)
		}
	}
	return nil
}

// ReadDir reverses WriteDir, returning the manifest and the raw bytes of
// each chunk file in chunk-index order.
func ReadDir(dir string) (*Manifest, [][]byte, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, nil, poierrors.Environmental("manifest dir", err)
	}
	var m Manifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return nil, nil, poierrors.Encoding("failed to parse manifest: " + err.Error())
	}

	chunksDir := filepath.Join(dir, "chunks")
	payloads := make([][]byte, len(m.Chunks))
	for i, c := range m.Chunks {
		name := filepath.Join(chunksDir, fmt.Sprintf("%04d.json", c.Index))
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, nil, poierrors.Environmental("manifest dir", err)
		}
		payloads[i] = data
	}
	return &m, payloads, nil
}
