package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poi-trace/core/pkg/anchor"
)

// SaveAnchorEntry persists an anchor entry keyed by root hash.
func (c *Client) SaveAnchorEntry(ctx context.Context, e *anchor.Entry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO anchor_entries (root_hash, entry_type, agent_id, manifest_hash, merkle_root, storage_uri, anchored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (root_hash) DO UPDATE SET
			entry_type = EXCLUDED.entry_type,
			agent_id = EXCLUDED.agent_id,
			manifest_hash = EXCLUDED.manifest_hash,
			merkle_root = EXCLUDED.merkle_root,
			storage_uri = EXCLUDED.storage_uri,
			anchored_at = EXCLUDED.anchored_at`,
		e.RootHash, e.Type, e.AgentID, nullableString(e.ManifestHash),
		nullableString(e.MerkleRoot), nullableString(e.StorageURI), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: save anchor entry: %w", err)
	}
	return nil
}

// LoadAnchorEntry retrieves a previously archived anchor entry by root
// hash. This is the method anchor.Store requires for offline audit replay
// (pkg/anchor.VerifyAgainstStore); Client satisfies it structurally so
// pkg/anchor never needs to import pkg/store.
func (c *Client) LoadAnchorEntry(ctx context.Context, rootHash string) (*anchor.Entry, error) {
	var (
		entryType, agentID                         string
		manifestHash, merkleRoot, storageURI       sql.NullString
		anchoredAt                                 time.Time
	)
	row := c.db.QueryRowContext(ctx, `
		SELECT entry_type, agent_id, manifest_hash, merkle_root, storage_uri, anchored_at
		FROM anchor_entries WHERE root_hash = $1`, rootHash)

	if err := row.Scan(&entryType, &agentID, &manifestHash, &merkleRoot, &storageURI, &anchoredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: no anchor entry for root hash %s: %w", rootHash, err)
		}
		return nil, fmt.Errorf("store: load anchor entry: %w", err)
	}

	return &anchor.Entry{
		Type:         entryType,
		AgentID:      agentID,
		RootHash:     rootHash,
		ManifestHash: manifestHash.String,
		MerkleRoot:   merkleRoot.String,
		StorageURI:   storageURI.String,
		Timestamp:    anchoredAt,
	}, nil
}
