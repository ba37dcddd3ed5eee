// Package anchor builds the deterministic record submitted to an external
// ledger to bind a bundle's root hashes to a point in time, and verifies
// such a binding against an abstract oracle. The core never submits
// transactions itself — grounded in the teacher's pkg/anchor package's
// separation of "build the anchor payload" from "talk to a specific chain",
// narrowed here to only the former plus a pluggable verification oracle
// (the chain-specific submission logic the teacher's anchor_manager.go did,
// wired to go-ethereum/Accumulate clients, is out of scope for this
// spec's abstract ledger boundary).
package anchor

import (
	"time"

	"github.com/poi-trace/core/pkg/bundle"
	"github.com/poi-trace/core/pkg/poierrors"
)

// Label is the well-known integer metadata label an AnchorEntry is filed
// under when submitted to an external ledger.
const Label = 0x504f4954 // "POIT" read as a big-endian uint32

// Entry is the deterministic record bound into an external ledger
// transaction.
type Entry struct {
	Type         string    `json:"type"`
	AgentID      string    `json:"agentId"`
	RootHash     string    `json:"rootHash"`
	ManifestHash string    `json:"manifestHash,omitempty"`
	MerkleRoot   string    `json:"merkleRoot,omitempty"`
	StorageURI   string    `json:"storageUri,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EntryType is the fixed type tag stamped onto every entry this package
// produces.
const EntryType = "poi-trace-anchor/1"

// Options configures CreateEntryFromBundle.
type Options struct {
	AgentID           string
	IncludeMerkleRoot bool
	StorageURI        string
}

// CreateEntryFromBundle derives an AnchorEntry naming b's rootHash and
// manifestHash (and merkleRoot when requested).
func CreateEntryFromBundle(b *bundle.Bundle, opts Options) (*Entry, error) {
	if b.RootHash == "" {
		return nil, poierrors.Input("bundle has no rootHash to anchor")
	}

	entry := &Entry{
		Type:         EntryType,
		AgentID:      opts.AgentID,
		RootHash:     b.RootHash,
		ManifestHash: b.ManifestHash,
		StorageURI:   opts.StorageURI,
		Timestamp:    time.Now().UTC(),
	}
	if opts.IncludeMerkleRoot {
		entry.MerkleRoot = b.MerkleRoot
	}
	return entry, nil
}

// Metadata is the well-known-label wrapper submitted as ledger transaction
// metadata.
type Metadata map[int]*Entry

// BuildMetadata wraps entry under Label.
func BuildMetadata(entry *Entry) Metadata {
	return Metadata{Label: entry}
}
