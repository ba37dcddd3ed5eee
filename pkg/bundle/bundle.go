// Package bundle turns a frozen trace.Run into a TraceBundle: a public view
// suitable for external disclosure plus the full private run, independently
// re-verifiable. Grounded in the teacher's pkg/verification.UnifiedVerifier:
// same "derive a self-contained bundle type, then verify every property
// independently and accumulate failures into one report" shape, narrowed
// from the teacher's four proof levels to this package's six hash/sequence
// checks.
package bundle

import (
	"sort"

	"github.com/poi-trace/core/pkg/codec"
	"github.com/poi-trace/core/pkg/merkle"
	"github.com/poi-trace/core/pkg/poierrors"
	"github.com/poi-trace/core/pkg/rollinghash"
	"github.com/poi-trace/core/pkg/trace"
)

// FormatVersion is stamped on every bundle produced by New.
const FormatVersion = "poi-trace-bundle/1"

// RedactedSpan is the opaque stand-in for a non-public span in a PublicView.
type RedactedSpan struct {
	SpanID string `json:"spanId"`
	Hash   string `json:"hash"`
}

// PublicView is the disclosure-safe projection of a finalized run: only
// public spans, with only their public events, plus hash references for
// everything redacted.
type PublicView struct {
	RunID              string        `json:"runId"`
	AgentID            string        `json:"agentId"`
	SchemaVersion      string        `json:"schemaVersion"`
	StartedAt          interface{}   `json:"startedAt"`
	EndedAt            interface{}   `json:"endedAt,omitempty"`
	DurationMs         *int64        `json:"durationMs,omitempty"`
	Status             trace.RunStatus `json:"status"`
	TotalEvents        int           `json:"totalEvents"`
	TotalSpans         int           `json:"totalSpans"`
	RootHash           string        `json:"rootHash"`
	MerkleRoot         string        `json:"merkleRoot"`
	PublicSpans        []trace.Span  `json:"publicSpans"`
	RedactedSpanHashes []RedactedSpan `json:"redactedSpanHashes"`
}

// Bundle is the portable, verifiable artifact produced by finalizing a run.
type Bundle struct {
	FormatVersion string      `json:"formatVersion"`
	PublicView    PublicView  `json:"publicView"`
	PrivateRun    *trace.Run  `json:"privateRun"`
	RootHash      string      `json:"rootHash"`
	MerkleRoot    string      `json:"merkleRoot"`
	ManifestHash  string      `json:"manifestHash,omitempty"`
	SignerID      string      `json:"signerId,omitempty"`
	Signature     string      `json:"signature,omitempty"`
}

// New builds a Bundle from a finalized run. run must already have
// RollingHash/RootHash populated by trace.Run.Finalize.
func New(run *trace.Run) (*Bundle, error) {
	if run.RootHash == "" {
		return nil, poierrors.Input("cannot bundle a run that has not been finalized")
	}

	merkleRoot, err := computeMerkleRoot(run.Spans)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		FormatVersion: FormatVersion,
		PublicView:    buildPublicView(run, merkleRoot),
		PrivateRun:    run,
		RootHash:      run.RootHash,
		MerkleRoot:    merkleRoot,
	}, nil
}

func computeMerkleRoot(spans []trace.Span) (string, error) {
	inputs := make([]merkle.SpanInput, len(spans))
	for i, s := range spans {
		if s.Hash == "" {
			return "", poierrors.MissingHash("span " + s.ID)
		}
		inputs[i] = merkle.SpanInput{SpanSeq: s.SpanSeq, Hash: s.Hash}
	}
	return merkle.Build(inputs).RootHash(), nil
}

func buildPublicView(run *trace.Run, merkleRoot string) PublicView {
	var publicSpans []trace.Span
	var redacted []RedactedSpan

	for _, s := range run.Spans {
		if s.Visibility == trace.VisibilityPublic {
			publicSpans = append(publicSpans, projectPublicEvents(s, run.Events))
		} else {
			redacted = append(redacted, RedactedSpan{SpanID: s.ID, Hash: s.Hash})
		}
	}

	sort.Slice(publicSpans, func(i, j int) bool { return publicSpans[i].SpanSeq < publicSpans[j].SpanSeq })
	sort.Slice(redacted, func(i, j int) bool { return redacted[i].SpanID < redacted[j].SpanID })

	if publicSpans == nil {
		publicSpans = []trace.Span{}
	}
	if redacted == nil {
		redacted = []RedactedSpan{}
	}

	return PublicView{
		RunID:              run.ID,
		AgentID:            run.AgentID,
		SchemaVersion:      run.SchemaVersion,
		StartedAt:          run.StartedAt,
		EndedAt:            run.EndedAt,
		DurationMs:         run.DurationMs,
		Status:             run.Status,
		TotalEvents:        len(run.Events),
		TotalSpans:         len(run.Spans),
		RootHash:           run.RootHash,
		MerkleRoot:         merkleRoot,
		PublicSpans:        publicSpans,
		RedactedSpanHashes: redacted,
	}
}

func projectPublicEvents(span trace.Span, allEvents []trace.Event) trace.Span {
	eventByID := make(map[string]trace.Event, len(allEvents))
	for _, e := range allEvents {
		eventByID[e.ID] = e
	}

	var kept []string
	var keptEvents []trace.Event
	for _, eid := range span.EventIDs {
		e, ok := eventByID[eid]
		if !ok || e.Visibility != trace.VisibilityPublic {
			continue
		}
		kept = append(kept, eid)
		keptEvents = append(keptEvents, e)
	}
	sort.Slice(keptEvents, func(i, j int) bool { return keptEvents[i].Seq < keptEvents[j].Seq })

	out := span
	out.EventIDs = kept
	if out.EventIDs == nil {
		out.EventIDs = []string{}
	}
	return out
}

// CanonicalSigningPayload returns the bytes Sign/VerifySignature hand to
// the signature provider: the canonical form of
// {rootHash, merkleRoot, manifestHash?}, omitting manifestHash when absent.
func CanonicalSigningPayload(b *Bundle) ([]byte, error) {
	payload := map[string]interface{}{
		"rootHash":   b.RootHash,
		"merkleRoot": b.MerkleRoot,
	}
	if b.ManifestHash != "" {
		payload["manifestHash"] = b.ManifestHash
	}
	return codec.Canonical(payload)
}

// rollingHashValid recomputes every event's content hash, then recomputes
// the rolling hash from those, and compares it against the stored value.
// Recomputing from content (rather than folding the stored Hash field)
// means tampering with an event while leaving its Hash field untouched is
// caught here too.
func rollingHashValid(run *trace.Run) bool {
	hashed := make([]rollinghash.HashedEvent, len(run.Events))
	for i, e := range run.Events {
		hash, err := trace.ComputeEventHash(e)
		if err != nil {
			return false
		}
		hashed[i] = rollinghash.HashedEvent{Seq: e.Seq, Hash: hash}
	}
	return rollinghash.Verify(hashed, run.RollingHash)
}
