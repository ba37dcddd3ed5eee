// Package rollinghash implements the domain-separated chained SHA-256 that
// commits to an ordered event list (spec §4.2), and the root-hash
// commitment that binds the rolling hash to the run's span list. Grounded
// in the teacher's pkg/commitment pairwise-fold idiom, adapted from a
// Merkle reduction into a strictly sequential chain as the spec requires.
package rollinghash

import (
	"crypto/subtle"
	"sort"

	"github.com/poi-trace/core/pkg/codec"
	"github.com/poi-trace/core/pkg/poierrors"
)

const (
	domainEvent = "poi-trace:event:v1|"
	domainRoll  = "poi-trace:roll:v1|"
	domainRoot  = "poi-trace:root:v1|"
	genesisSeed = "genesis"
)

// State is the rolling hash accumulator. Zero value is invalid; use Init.
type State struct {
	CurrentHash string
	ItemCount   int
}

// Init returns the genesis rolling-hash state.
func Init() State {
	return State{CurrentHash: codec.SHA256Hex(domainRoll + genesisSeed), ItemCount: 0}
}

// Update folds eventHash into state, returning the next state. State is
// immutable; Update never mutates its receiver.
func Update(state State, eventHash string) State {
	return State{
		CurrentHash: codec.SHA256Hex(domainRoll + state.CurrentHash + "|" + eventHash),
		ItemCount:   state.ItemCount + 1,
	}
}

// HashedEvent is the minimal view rollinghash needs of an event: its
// sequence number (for sort stability) and its precomputed hash.
type HashedEvent struct {
	Seq  int
	Hash string
}

// Compute sorts events by Seq and folds Update across them from genesis,
// returning the final rolling hash. The input slice is not mutated.
func Compute(events []HashedEvent) string {
	sorted := make([]HashedEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	state := Init()
	for _, e := range sorted {
		state = Update(state, e.Hash)
	}
	return state.CurrentHash
}

// HashedSpan is the minimal view rollinghash needs of a span for root
// computation: its ordering key and precomputed hash.
type HashedSpan struct {
	SpanSeq int
	Hash    string
}

// ComputeRoot builds the root-hash commitment over (rollingHash, spans).
// Spans are sorted by SpanSeq. An empty span hash is fatal, matching the
// spec's "missing span hash during root computation is fatal" rule.
func ComputeRoot(rollingHash string, spans []HashedSpan) (string, error) {
	sorted := make([]HashedSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SpanSeq < sorted[j].SpanSeq })

	payload := domainRoot + rollingHash
	for _, s := range sorted {
		if s.Hash == "" {
			return "", poierrors.MissingHash("span in root-hash computation")
		}
		payload += "|" + s.Hash
	}
	return codec.SHA256Hex(payload), nil
}

// Verify recomputes the rolling hash over events and compares it against
// expected using constant-time equality.
func Verify(events []HashedEvent, expected string) bool {
	got := Compute(events)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// EventHash computes the domain-separated hash of a single event given its
// canonical payload (the event with its own hash field omitted):
// SHA256("poi-trace:event:v1|" + canonicalPayload).
func EventHash(canonicalPayload []byte) string {
	return codec.SHA256HexBytes(append([]byte(domainEvent), canonicalPayload...))
}
