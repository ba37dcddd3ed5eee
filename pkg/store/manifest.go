package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/poi-trace/core/pkg/manifest"
)

// SaveManifest persists a manifest and its chunk payloads, keyed by run id.
func (c *Client) SaveManifest(ctx context.Context, runID string, m *manifest.Manifest, chunkPayloads [][]byte) error {
	encoded, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: marshal manifest: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO manifests (run_id, manifest_hash, total_chunks, chunk_size, manifest)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			manifest_hash = EXCLUDED.manifest_hash,
			total_chunks = EXCLUDED.total_chunks,
			chunk_size = EXCLUDED.chunk_size,
			manifest = EXCLUDED.manifest`,
		runID, m.ManifestHash, m.TotalChunks, m.ChunkSize, encoded,
	)
	if err != nil {
		return fmt.Errorf("store: save manifest: %w", err)
	}

	for i, chunk := range m.Chunks {
		if i >= len(chunkPayloads) {
			break
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO manifest_chunks (run_id, chunk_index, chunk_hash, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id, chunk_index) DO UPDATE SET
				chunk_hash = EXCLUDED.chunk_hash,
				payload = EXCLUDED.payload`,
			runID, chunk.Index, chunk.Hash, chunkPayloads[i],
		)
		if err != nil {
			return fmt.Errorf("store: save manifest chunk %d: %w", chunk.Index, err)
		}
	}

	return tx.Commit()
}

// LoadManifest retrieves a manifest and its chunk payloads by run id.
func (c *Client) LoadManifest(ctx context.Context, runID string) (*manifest.Manifest, [][]byte, error) {
	var encoded []byte
	if err := c.db.QueryRowContext(ctx, `SELECT manifest FROM manifests WHERE run_id = $1`, runID).Scan(&encoded); err != nil {
		return nil, nil, fmt.Errorf("store: load manifest: %w", err)
	}

	var m manifest.Manifest
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, nil, fmt.Errorf("store: decode manifest: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT chunk_index, payload FROM manifest_chunks WHERE run_id = $1 ORDER BY chunk_index`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load manifest chunks: %w", err)
	}
	defer rows.Close()

	payloads := make([][]byte, m.TotalChunks)
	for rows.Next() {
		var index int
		var payload []byte
		if err := rows.Scan(&index, &payload); err != nil {
			return nil, nil, fmt.Errorf("store: scan manifest chunk: %w", err)
		}
		if index >= 0 && index < len(payloads) {
			payloads[index] = payload
		}
	}
	return &m, payloads, rows.Err()
}
