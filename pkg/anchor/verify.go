package anchor

import "context"

// OracleResult is what an external-ledger oracle returns for a transaction
// id: the metadata label and the decoded anchor entry it found there, or
// nothing if the transaction carries no poi-trace anchor.
type OracleResult struct {
	Label   int
	Payload *Entry
}

// Oracle is the abstract read-only adapter the core uses to ask an external
// ledger what a transaction committed. The core never submits transactions
// itself; an Oracle implementation (chain-specific, outside this package)
// is the only thing that talks to a live ledger.
type Oracle interface {
	Lookup(ctx context.Context, txID string) (*OracleResult, error)
}

// VerificationResult is the outcome of VerifyAnchor.
type VerificationResult struct {
	Valid  bool
	Anchor *Entry
	Reason string
}

// VerifyAnchor looks up txID via provider and checks that its committed
// rootHash matches expectedRootHash.
func VerifyAnchor(ctx context.Context, provider Oracle, txID, expectedRootHash string) (*VerificationResult, error) {
	result, err := provider.Lookup(ctx, txID)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Payload == nil {
		return &VerificationResult{Valid: false, Reason: "transaction carries no poi-trace anchor"}, nil
	}
	if result.Label != Label {
		return &VerificationResult{Valid: false, Reason: "unexpected metadata label"}, nil
	}
	if result.Payload.RootHash != expectedRootHash {
		return &VerificationResult{Valid: false, Anchor: result.Payload, Reason: "rootHash mismatch"}, nil
	}
	return &VerificationResult{Valid: true, Anchor: result.Payload}, nil
}

// Store is the minimal persistence contract VerifyAgainstStore needs. It is
// satisfied by pkg/store.Client without anchor importing store directly,
// avoiding an import cycle (store already depends on anchor for Entry).
type Store interface {
	LoadAnchorEntry(ctx context.Context, rootHash string) (*Entry, error)
}

// VerifyAgainstStore replays a locally archived anchor entry instead of
// querying the external ledger, useful for offline audits once an entry has
// already been fetched and persisted once. Supplements the oracle contract
// from §4.7, which only covers live verification.
func VerifyAgainstStore(ctx context.Context, store Store, rootHash string) (*VerificationResult, error) {
	entry, err := store.LoadAnchorEntry(ctx, rootHash)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &VerificationResult{Valid: false, Reason: "no archived anchor entry for rootHash"}, nil
	}
	if entry.RootHash != rootHash {
		return &VerificationResult{Valid: false, Anchor: entry, Reason: "rootHash mismatch"}, nil
	}
	return &VerificationResult{Valid: true, Anchor: entry}, nil
}
