// Package merkle implements the span-level Merkle tree and its
// selective-disclosure inclusion proofs (spec §4.3). Adapted from the
// teacher's pkg/merkle.Tree: same odd-level duplication and level-by-level
// proof walk, generalized with per-domain hash prefixes (leaf/node) and
// span-seq-ordered construction instead of raw insertion order.
package merkle

import (
	"crypto/subtle"
	"errors"
	"sort"

	"github.com/poi-trace/core/pkg/codec"
)

const (
	domainLeaf = "poi-trace:leaf:v1|"
	domainNode = "poi-trace:node:v1|"
)

// ErrLeafIndexOutOfRange is returned by GenerateProof for an invalid index.
var ErrLeafIndexOutOfRange = errors.New("merkle: leaf index out of range")

// Position indicates which side of a pairing a sibling hash sits on.
type Position string

const (
	Left  Position = "left"
	Right Position = "right"
)

// ProofSibling is one step of an inclusion proof's path to the root.
type ProofSibling struct {
	Hash     string   `json:"hash"`
	Position Position `json:"position"`
}

// Proof is a complete Merkle inclusion proof for a single leaf.
type Proof struct {
	LeafHash  string         `json:"leafHash"`
	LeafIndex int            `json:"leafIndex"`
	Siblings  []ProofSibling `json:"siblings"`
	RootHash  string         `json:"rootHash"`
}

// Tree is an immutable binary Merkle tree built from span hashes.
type Tree struct {
	leaves   []string // leaf hashes, in spanSeq order
	levels   [][]string
	rootHash string
	depth    int
}

// SpanInput is the minimal view merkle.Build needs of a span.
type SpanInput struct {
	SpanSeq int
	Hash    string
}

// Build constructs a Tree over the given spans, sorted by SpanSeq. An empty
// input returns a zero-value tree with RootHash()=="" and LeafCount()==0,
// matching the spec's boundary behavior.
func Build(spans []SpanInput) *Tree {
	sorted := make([]SpanInput, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SpanSeq < sorted[j].SpanSeq })

	if len(sorted) == 0 {
		return &Tree{}
	}

	leaves := make([]string, len(sorted))
	leafHashes := make([]string, len(sorted))
	for i, s := range sorted {
		leaves[i] = s.Hash
		leafHashes[i] = leafHash(s.Hash)
	}

	levels := [][]string{leafHashes}
	current := leafHashes
	for len(current) > 1 {
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			left := current[i]
			right := left
			if i+1 < len(current) {
				right = current[i+1]
			}
			next = append(next, nodeHash(left, right))
		}
		levels = append(levels, next)
		current = next
	}

	return &Tree{
		leaves:   leaves,
		levels:   levels,
		rootHash: current[0],
		depth:    len(levels) - 1,
	}
}

func leafHash(spanHash string) string {
	return codec.SHA256Hex(domainLeaf + spanHash)
}

func nodeHash(left, right string) string {
	return codec.SHA256Hex(domainNode + left + "|" + right)
}

// RootHash returns the tree's root, or "" for an empty tree.
func (t *Tree) RootHash() string { return t.rootHash }

// Depth returns ceil(log2(leafCount)), 0 for leafCount <= 1.
func (t *Tree) Depth() int { return t.depth }

// LeafCount returns the number of span leaves in the tree.
func (t *Tree) LeafCount() int { return len(t.leaves) }

// GenerateProof builds an inclusion proof for the leaf at spanSeq-sorted
// index i. A single-leaf tree's proof has an empty Siblings list.
func (t *Tree) GenerateProof(i int) (*Proof, error) {
	if i < 0 || i >= len(t.leaves) {
		return nil, ErrLeafIndexOutOfRange
	}

	proof := &Proof{
		LeafHash:  t.leaves[i],
		LeafIndex: i,
		RootHash:  t.rootHash,
		Siblings:  []ProofSibling{},
	}

	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		var siblingIdx int
		var position Position
		if idx%2 == 0 {
			siblingIdx = idx + 1
			position = Right
		} else {
			siblingIdx = idx - 1
			position = Left
		}

		var siblingHash string
		if siblingIdx < len(nodes) {
			siblingHash = nodes[siblingIdx]
		} else {
			// odd level: duplicated element is its own sibling
			siblingHash = nodes[idx]
			position = Right
		}

		proof.Siblings = append(proof.Siblings, ProofSibling{Hash: siblingHash, Position: position})
		idx /= 2
	}

	return proof, nil
}

// VerifyProof checks that proof folds, leaf-hash-first, to rootHash. The
// leaf domain wrap is applied here so callers pass the raw span hash, as
// they do when generating proofs via GenerateProof.
func VerifyProof(spanHash string, proof *Proof, rootHash string) bool {
	if proof == nil {
		return false
	}
	current := leafHash(spanHash)
	if len(proof.Siblings) == 0 {
		return constantTimeEqual(current, rootHash)
	}
	for _, sib := range proof.Siblings {
		if sib.Position == Left {
			current = nodeHash(sib.Hash, current)
		} else {
			current = nodeHash(current, sib.Hash)
		}
	}
	return constantTimeEqual(current, rootHash)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
