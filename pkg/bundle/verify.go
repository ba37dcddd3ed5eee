package bundle

import (
	"sort"

	"github.com/poi-trace/core/pkg/rollinghash"
	"github.com/poi-trace/core/pkg/trace"
)

// Checks reports the outcome of each independently-recomputed property.
type Checks struct {
	RollingHashValid bool `json:"rollingHashValid"`
	RootHashValid    bool `json:"rootHashValid"`
	MerkleRootValid  bool `json:"merkleRootValid"`
	SpanHashesValid  bool `json:"spanHashesValid"`
	EventHashesValid bool `json:"eventHashesValid"`
	SequenceValid    bool `json:"sequenceValid"`
}

// VerificationResult is the outcome of Verify: every check ran regardless of
// whether an earlier one failed, so Errors may report several independent
// defects in a single pass.
type VerificationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Checks   Checks   `json:"checks"`
}

func (r *VerificationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *VerificationResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Verify recomputes rollingHashValid, rootHashValid, merkleRootValid,
// spanHashesValid, eventHashesValid, and sequenceValid independently. Every
// check runs even after an earlier one fails, so the report is complete
// rather than short-circuited on the first defect.
func Verify(b *Bundle) *VerificationResult {
	result := &VerificationResult{}

	if b.PrivateRun == nil {
		result.addError("bundle has no privateRun to verify against")
		return result
	}
	run := b.PrivateRun

	result.Checks.EventHashesValid = verifyEventHashes(run, result)
	result.Checks.SpanHashesValid = verifySpanHashes(run, result)
	result.Checks.RollingHashValid = verifyRollingHashCheck(run, result)
	result.Checks.RootHashValid = verifyRootHashCheck(run, b, result)
	result.Checks.MerkleRootValid = verifyMerkleRootCheck(run, b, result)
	result.Checks.SequenceValid = verifySequence(run, result)

	if len(b.PublicView.PublicSpans) == 0 {
		result.addWarning("no public spans in bundle")
	}
	if string(b.PublicView.Status) != string(run.Status) {
		result.addWarning("publicView.status does not match privateRun.status")
	}

	result.Valid = result.Checks.RollingHashValid && result.Checks.RootHashValid &&
		result.Checks.MerkleRootValid && result.Checks.SpanHashesValid &&
		result.Checks.EventHashesValid && result.Checks.SequenceValid

	return result
}

// verifyEventHashes recomputes each event's hash from its current field
// values and compares it against the stored Hash, so tampering with a
// payload/timestamp/visibility while leaving Hash untouched is caught here.
func verifyEventHashes(run *trace.Run, result *VerificationResult) bool {
	ok := true
	for _, e := range run.Events {
		if e.Hash == "" {
			result.addError("event " + e.ID + " has no hash")
			ok = false
			continue
		}
		recomputed, err := trace.ComputeEventHash(e)
		if err != nil || recomputed != e.Hash {
			result.addError("event " + e.ID + " hash does not match recomputed value")
			ok = false
		}
	}
	return ok
}

// verifySpanHashes recomputes each span's hash from its current field
// values and the recomputed (not stored) hashes of its events, so
// tampering with span or event content is caught even if the stored
// Hash fields were left consistent with each other.
func verifySpanHashes(run *trace.Run, result *VerificationResult) bool {
	ok := true

	eventByID := make(map[string]trace.Event, len(run.Events))
	for _, e := range run.Events {
		eventByID[e.ID] = e
	}

	for _, s := range run.Spans {
		if s.Hash == "" {
			result.addError("span " + s.ID + " has no hash")
			ok = false
			continue
		}

		recomputedEvents := make([]rollinghash.HashedEvent, 0, len(s.EventIDs))
		for _, eid := range s.EventIDs {
			e, found := eventByID[eid]
			if !found {
				continue
			}
			hash, err := trace.ComputeEventHash(e)
			if err != nil {
				result.addError("span " + s.ID + " event " + eid + " failed to hash: " + err.Error())
				ok = false
				continue
			}
			recomputedEvents = append(recomputedEvents, rollinghash.HashedEvent{Seq: e.Seq, Hash: hash})
		}

		recomputed, err := trace.ComputeSpanHash(s, recomputedEvents)
		if err != nil || recomputed != s.Hash {
			result.addError("span " + s.ID + " hash does not match recomputed value")
			ok = false
		}
	}
	return ok
}

func verifyRollingHashCheck(run *trace.Run, result *VerificationResult) bool {
	if !rollingHashValid(run) {
		result.addError("rollingHash does not match recomputed value")
		return false
	}
	return true
}

func verifyRootHashCheck(run *trace.Run, b *Bundle, result *VerificationResult) bool {
	hashedSpans := make([]rollinghash.HashedSpan, len(run.Spans))
	for i, s := range run.Spans {
		hashedSpans[i] = rollinghash.HashedSpan{SpanSeq: s.SpanSeq, Hash: s.Hash}
	}
	recomputed, err := rollinghash.ComputeRoot(run.RollingHash, hashedSpans)
	if err != nil || recomputed != run.RootHash || run.RootHash != b.RootHash {
		result.addError("rootHash does not match recomputed value")
		return false
	}
	return true
}

func verifyMerkleRootCheck(run *trace.Run, b *Bundle, result *VerificationResult) bool {
	recomputed, err := computeMerkleRoot(run.Spans)
	if err != nil || recomputed != b.MerkleRoot {
		result.addError("merkleRoot does not match recomputed value")
		return false
	}
	return true
}

func verifySequence(run *trace.Run, result *VerificationResult) bool {
	ok := true

	seqs := make([]int, len(run.Events))
	for i, e := range run.Events {
		seqs[i] = e.Seq
	}
	sort.Ints(seqs)
	for i, s := range seqs {
		if s != i {
			result.addError("event sequence is not dense/gap-free")
			ok = false
			break
		}
	}

	spanSeqs := make([]int, len(run.Spans))
	for i, s := range run.Spans {
		spanSeqs[i] = s.SpanSeq
	}
	sort.Ints(spanSeqs)
	for i, s := range spanSeqs {
		if s != i {
			result.addError("span sequence is not dense/gap-free")
			ok = false
			break
		}
	}

	eventByID := make(map[string]bool, len(run.Events))
	for _, e := range run.Events {
		eventByID[e.ID] = true
	}
	for _, s := range run.Spans {
		for _, eid := range s.EventIDs {
			if !eventByID[eid] {
				result.addError("span " + s.ID + " references unknown event " + eid)
				ok = false
			}
		}
	}

	return ok
}
