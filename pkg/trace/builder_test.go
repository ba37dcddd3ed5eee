package trace

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/poi-trace/core/pkg/codec"
	"github.com/poi-trace/core/pkg/poierrors"
	"github.com/poi-trace/core/pkg/rollinghash"
)

func TestCreateTrace_Defaults(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	if run.ID == "" {
		t.Fatal("expected non-empty run id")
	}
	if run.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("got schema version %q", run.SchemaVersion)
	}
	if run.Status != RunRunning {
		t.Errorf("got status %q, want running", run.Status)
	}
}

func TestAddSpan_DefaultVisibilityPublic(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, err := run.AddSpan(SpanOptions{Name: "root"})
	if err != nil {
		t.Fatal(err)
	}
	if span.Visibility != VisibilityPublic {
		t.Errorf("got visibility %q, want public", span.Visibility)
	}
	if span.SpanSeq != 0 {
		t.Errorf("got spanSeq %d, want 0", span.SpanSeq)
	}
}

func TestAddSpan_UnknownParentRejected(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	_, err := run.AddSpan(SpanOptions{Name: "child", ParentSpanID: "nope"})
	if pe, ok := err.(*poierrors.PoiError); !ok || pe.Code != poierrors.CodeSpanNotFound {
		t.Errorf("expected SpanNotFound, got %v", err)
	}
}

func TestAddSpan_ClosedParentRejected(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	parent, _ := run.AddSpan(SpanOptions{Name: "root"})
	if err := run.CloseSpan(parent.ID); err != nil {
		t.Fatal(err)
	}
	_, err := run.AddSpan(SpanOptions{Name: "child", ParentSpanID: parent.ID})
	if pe, ok := err.(*poierrors.PoiError); !ok || pe.Code != poierrors.CodeSpanClosed {
		t.Errorf("expected SpanClosed, got %v", err)
	}
}

func TestAddEvent_DefaultVisibilityByKind(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})

	cmd, err := run.AddEvent(span.ID, EventInput{Kind: KindCommand})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Visibility != VisibilityPublic {
		t.Errorf("command event default should be public, got %q", cmd.Visibility)
	}

	dec, err := run.AddEvent(span.ID, EventInput{Kind: KindDecision})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Visibility != VisibilityPrivate {
		t.Errorf("decision event default should be private, got %q", dec.Visibility)
	}
}

func TestAddEvent_OnClosedSpanRejected(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})
	if err := run.CloseSpan(span.ID); err != nil {
		t.Fatal(err)
	}
	_, err := run.AddEvent(span.ID, EventInput{Kind: KindOutput})
	if pe, ok := err.(*poierrors.PoiError); !ok || pe.Code != poierrors.CodeSpanClosed {
		t.Errorf("expected SpanClosed, got %v", err)
	}
}

func TestAddEvent_BackpressureCap(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1", MaxEvents: 1})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})
	if _, err := run.AddEvent(span.ID, EventInput{Kind: KindOutput}); err != nil {
		t.Fatal(err)
	}
	_, err := run.AddEvent(span.ID, EventInput{Kind: KindOutput})
	if pe, ok := err.(*poierrors.PoiError); !ok || pe.Code != poierrors.CodeBackpressure {
		t.Errorf("expected Backpressure, got %v", err)
	}
}

func TestCloseSpan_IdempotentSameStatus(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})
	if err := run.CloseSpan(span.ID, SpanCompleted); err != nil {
		t.Fatal(err)
	}
	if err := run.CloseSpan(span.ID, SpanCompleted); err != nil {
		t.Errorf("re-closing with same status should be a no-op, got %v", err)
	}
}

func TestCloseSpan_DifferentStatusRejected(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})
	if err := run.CloseSpan(span.ID, SpanCompleted); err != nil {
		t.Fatal(err)
	}
	err := run.CloseSpan(span.ID, SpanFailed)
	if pe, ok := err.(*poierrors.PoiError); !ok || pe.Code != poierrors.CodeSpanClosed {
		t.Errorf("expected SpanClosed, got %v", err)
	}
}

func TestFinalize_CancelsOpenSpansAndFreezes(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})
	if _, err := run.AddEvent(span.ID, EventInput{Kind: KindCommand, Payload: map[string]interface{}{"x": 1}}); err != nil {
		t.Fatal(err)
	}

	finalized, err := run.Finalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if finalized.Status != RunCompleted {
		t.Errorf("got status %q, want completed", finalized.Status)
	}
	if finalized.Spans[0].Status != SpanCancelled {
		t.Errorf("still-open span should be cancelled on finalize, got %q", finalized.Spans[0].Status)
	}
	if finalized.RollingHash == "" || finalized.RootHash == "" {
		t.Error("expected rolling and root hash to be populated")
	}
	for _, e := range finalized.Events {
		if e.Hash == "" {
			t.Error("expected every event to have a hash after finalize")
		}
	}
	for _, s := range finalized.Spans {
		if s.Hash == "" {
			t.Error("expected every span to have a hash after finalize")
		}
	}
}

func TestFinalize_Twice(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	if _, err := run.Finalize(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := run.Finalize(context.Background())
	if pe, ok := err.(*poierrors.PoiError); !ok || pe.Code != poierrors.CodeRunFinalized {
		t.Errorf("expected RunFinalized, got %v", err)
	}
}

func TestMutationAfterFinalizeRejected(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, _ := run.AddSpan(SpanOptions{Name: "root"})
	if _, err := run.Finalize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := run.AddSpan(SpanOptions{Name: "late"}); err == nil {
		t.Error("expected AddSpan to fail after finalize")
	}
	if _, err := run.AddEvent(span.ID, EventInput{Kind: KindOutput}); err == nil {
		t.Error("expected AddEvent to fail after finalize")
	}
	if err := run.CloseSpan(span.ID); err == nil {
		t.Error("expected CloseSpan to fail after finalize")
	}
}

// TestFinalize_SpanHashMatchesHandComputedSpecFormula hand-computes
// SHA256("poi-trace:span:v1|" + canonical(span \ {hash}) + "|" +
// join("|", eventHashes sorted by seq)) independently of ComputeSpanHash
// and checks the finalized span's Hash against it, so a regression in
// field or operator order is caught without relying on Finalize's own
// hashing code to grade itself.
func TestFinalize_SpanHashMatchesHandComputedSpecFormula(t *testing.T) {
	run := CreateTrace(CreateOptions{AgentID: "agent-1"})
	span, err := run.AddSpan(SpanOptions{Name: "root"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.AddEvent(span.ID, EventInput{Kind: KindCommand, Payload: map[string]interface{}{"step": 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := run.AddEvent(span.ID, EventInput{Kind: KindOutput, Payload: map[string]interface{}{"step": 2}}); err != nil {
		t.Fatal(err)
	}
	if err := run.CloseSpan(span.ID); err != nil {
		t.Fatal(err)
	}

	finalized, err := run.Finalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	finalizedSpan := finalized.Spans[0]
	eventByID := make(map[string]Event, len(finalized.Events))
	for _, e := range finalized.Events {
		eventByID[e.ID] = e
	}

	eventHashes := make([]string, 0, len(finalizedSpan.EventIDs))
	type seqHash struct {
		seq  int
		hash string
	}
	var ordered []seqHash
	for _, eid := range finalizedSpan.EventIDs {
		e := eventByID[eid]
		ordered = append(ordered, seqHash{seq: e.Seq, hash: e.Hash})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	for _, oh := range ordered {
		eventHashes = append(eventHashes, oh.hash)
	}

	bareSpan := finalizedSpan
	bareSpan.Hash = ""
	canonicalSpan, err := codec.Canonical(bareSpan)
	if err != nil {
		t.Fatal(err)
	}
	want := codec.SHA256Hex("poi-trace:span:v1|" + string(canonicalSpan) + "|" + strings.Join(eventHashes, "|"))

	if finalizedSpan.Hash != want {
		t.Errorf("span hash %q does not match hand-computed spec formula %q", finalizedSpan.Hash, want)
	}

	// ComputeSpanHash itself must also agree, independent of Finalize's
	// internal call order.
	hashedEvents := make([]rollinghash.HashedEvent, len(ordered))
	for i, oh := range ordered {
		hashedEvents[i] = rollinghash.HashedEvent{Seq: oh.seq, Hash: oh.hash}
	}
	got, err := ComputeSpanHash(finalizedSpan, hashedEvents)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ComputeSpanHash returned %q, want %q", got, want)
	}
}

func TestFinalize_NonEmptyRollingHashForEquivalentRuns(t *testing.T) {
	build := func() *Run {
		run := CreateTrace(CreateOptions{AgentID: "agent-1"})
		span, _ := run.AddSpan(SpanOptions{Name: "root"})
		run.AddEvent(span.ID, EventInput{Kind: KindCommand, Payload: map[string]interface{}{"step": 1}})
		run.AddEvent(span.ID, EventInput{Kind: KindOutput, Payload: map[string]interface{}{"step": 2}})
		run.CloseSpan(span.ID)
		finalized, _ := run.Finalize(context.Background())
		return finalized
	}

	a := build()
	b := build()
	// Ids/timestamps differ between a and b, so their rolling hashes are not
	// byte-identical; each equivalently shaped run still gets a non-empty
	// rolling hash.
	if a.RollingHash == "" || b.RollingHash == "" {
		t.Fatal("expected non-empty rolling hashes")
	}
}
