package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/poi-trace/core/pkg/bundle"
)

// SaveBundle persists a bundle's public view, private run, and signing
// material, keyed by run id. Grounded in the teacher's
// AnchorRepository.CreateAnchor upsert-by-primary-key shape.
func (c *Client) SaveBundle(ctx context.Context, b *bundle.Bundle) error {
	publicView, err := json.Marshal(b.PublicView)
	if err != nil {
		return fmt.Errorf("store: marshal public view: %w", err)
	}
	privateRun, err := json.Marshal(b.PrivateRun)
	if err != nil {
		return fmt.Errorf("store: marshal private run: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO bundles (run_id, agent_id, root_hash, merkle_root, manifest_hash, signer_id, signature, public_view, private_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			root_hash = EXCLUDED.root_hash,
			merkle_root = EXCLUDED.merkle_root,
			manifest_hash = EXCLUDED.manifest_hash,
			signer_id = EXCLUDED.signer_id,
			signature = EXCLUDED.signature,
			public_view = EXCLUDED.public_view,
			private_run = EXCLUDED.private_run`,
		b.PublicView.RunID, b.PublicView.AgentID, b.RootHash, b.MerkleRoot,
		nullableString(b.ManifestHash), nullableString(b.SignerID), nullableString(b.Signature),
		publicView, privateRun,
	)
	if err != nil {
		return fmt.Errorf("store: save bundle: %w", err)
	}
	return nil
}

// LoadBundle retrieves a bundle's public view by run id. The private run is
// included only if it was persisted alongside it.
func (c *Client) LoadBundle(ctx context.Context, runID string) (*bundle.Bundle, error) {
	var (
		rootHash, merkleRoot                  string
		manifestHash, signerID, signature     sql.NullString
		publicViewRaw, privateRunRaw          []byte
	)
	row := c.db.QueryRowContext(ctx, `
		SELECT root_hash, merkle_root, manifest_hash, signer_id, signature, public_view, private_run
		FROM bundles WHERE run_id = $1`, runID)

	if err := row.Scan(&rootHash, &merkleRoot, &manifestHash, &signerID, &signature, &publicViewRaw, &privateRunRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: no bundle found for run %s: %w", runID, err)
		}
		return nil, fmt.Errorf("store: load bundle: %w", err)
	}

	var b bundle.Bundle
	b.RootHash = rootHash
	b.MerkleRoot = merkleRoot
	b.ManifestHash = manifestHash.String
	b.SignerID = signerID.String
	b.Signature = signature.String
	b.FormatVersion = bundle.FormatVersion
	if err := json.Unmarshal(publicViewRaw, &b.PublicView); err != nil {
		return nil, fmt.Errorf("store: decode public view: %w", err)
	}
	if len(privateRunRaw) > 0 {
		if err := json.Unmarshal(privateRunRaw, &b.PrivateRun); err != nil {
			return nil, fmt.Errorf("store: decode private run: %w", err)
		}
	}
	return &b, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
