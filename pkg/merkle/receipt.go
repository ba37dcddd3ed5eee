// Portable inclusion-proof witness: a self-contained, independently
// re-verifiable serialization of a Proof. Adapted from the teacher's
// Receipt/BinaryReceipt pair (pkg/merkle/receipt.go) — same "hex witness
// validates itself against fail-closed length/hex checks" shape — trimmed
// to this spec's single-level span tree (no LayeredReceipt chaining,
// which belonged to a multi-hierarchy accumulator this spec does not have).

package merkle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Witness is the portable, JSON-serializable form of a Proof. It exists
// separately from Proof so callers that persist or transmit proofs have a
// stable wire shape independent of in-memory representation, and so
// serializeWitness/deserializeWitness can be tested as an explicit
// round-trip law (spec §8).
type Witness struct {
	LeafHash  string          `json:"leafHash"`
	LeafIndex int             `json:"leafIndex"`
	Siblings  []WitnessEntry  `json:"siblings"`
	RootHash  string          `json:"rootHash"`
}

// WitnessEntry is one sibling step in a Witness path.
type WitnessEntry struct {
	Hash     string   `json:"hash"`
	Position Position `json:"position"`
}

// ToWitness converts a Proof into its portable Witness form.
func (p *Proof) ToWitness() *Witness {
	w := &Witness{
		LeafHash:  p.LeafHash,
		LeafIndex: p.LeafIndex,
		RootHash:  p.RootHash,
		Siblings:  make([]WitnessEntry, len(p.Siblings)),
	}
	for i, s := range p.Siblings {
		w.Siblings[i] = WitnessEntry{Hash: s.Hash, Position: s.Position}
	}
	return w
}

// ToProof converts a Witness back into a Proof.
func (w *Witness) ToProof() *Proof {
	p := &Proof{
		LeafHash:  w.LeafHash,
		LeafIndex: w.LeafIndex,
		RootHash:  w.RootHash,
		Siblings:  make([]ProofSibling, len(w.Siblings)),
	}
	for i, s := range w.Siblings {
		p.Siblings[i] = ProofSibling{Hash: s.Hash, Position: s.Position}
	}
	return p
}

// Validate performs the fail-closed structural checks a witness must pass
// before it is handed to VerifyProof: every hash must be exactly 64 lower-
// or mixed-case hex characters (32 raw bytes) and every sibling position
// must be "left" or "right".
func (w *Witness) Validate() error {
	if err := mustHex64(w.LeafHash, "witness.leafHash"); err != nil {
		return err
	}
	if err := mustHex64(w.RootHash, "witness.rootHash"); err != nil {
		return err
	}
	for i, s := range w.Siblings {
		if err := mustHex64(s.Hash, fmt.Sprintf("witness.siblings[%d].hash", i)); err != nil {
			return err
		}
		if s.Position != Left && s.Position != Right {
			return fmt.Errorf("witness.siblings[%d].position: must be %q or %q, got %q", i, Left, Right, s.Position)
		}
	}
	return nil
}

func mustHex64(s, label string) error {
	if len(s) != 64 {
		return fmt.Errorf("%s: expected 64 hex chars (32 bytes), got len=%d", label, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%s: invalid hex: %w", label, err)
	}
	return nil
}

// SerializeWitness encodes a Witness to canonical-ish JSON bytes.
func SerializeWitness(w *Witness) ([]byte, error) {
	return json.Marshal(w)
}

// DeserializeWitness decodes bytes produced by SerializeWitness, validating
// structure on the way in.
func DeserializeWitness(data []byte) (*Witness, error) {
	var w Witness
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("invalid witness JSON: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}
