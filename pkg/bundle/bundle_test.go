package bundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poi-trace/core/pkg/signature"
	"github.com/poi-trace/core/pkg/trace"
)

func buildFinalizedRun(t *testing.T) *trace.Run {
	t.Helper()
	run := trace.CreateTrace(trace.CreateOptions{AgentID: "agent-1"})
	pub, err := run.AddSpan(trace.SpanOptions{Name: "public-span"})
	if err != nil {
		t.Fatal(err)
	}
	priv, err := run.AddSpan(trace.SpanOptions{Name: "private-span", Visibility: trace.VisibilityPrivate})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.AddEvent(pub.ID, trace.EventInput{Kind: trace.KindCommand, Payload: map[string]interface{}{"cmd": "ls"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := run.AddEvent(pub.ID, trace.EventInput{Kind: trace.KindDecision, Payload: map[string]interface{}{"secretish": true}}); err != nil {
		t.Fatal(err)
	}
	if _, err := run.AddEvent(priv.ID, trace.EventInput{Kind: trace.KindOutput}); err != nil {
		t.Fatal(err)
	}
	if err := run.CloseSpan(pub.ID); err != nil {
		t.Fatal(err)
	}
	if err := run.CloseSpan(priv.ID); err != nil {
		t.Fatal(err)
	}
	finalized, err := run.Finalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return finalized
}

func TestNew_PublicViewRedactsNonPublicSpans(t *testing.T) {
	run := buildFinalizedRun(t)
	b, err := New(run)
	if err != nil {
		t.Fatal(err)
	}

	if len(b.PublicView.PublicSpans) != 1 {
		t.Fatalf("expected 1 public span, got %d", len(b.PublicView.PublicSpans))
	}
	if len(b.PublicView.RedactedSpanHashes) != 1 {
		t.Fatalf("expected 1 redacted span, got %d", len(b.PublicView.RedactedSpanHashes))
	}

	pubSpan := b.PublicView.PublicSpans[0]
	if len(pubSpan.EventIDs) != 1 {
		t.Errorf("public span should only retain its public (command) event, got %d events", len(pubSpan.EventIDs))
	}
}

func TestNew_RejectsUnfinalizedRun(t *testing.T) {
	run := trace.CreateTrace(trace.CreateOptions{AgentID: "agent-1"})
	if _, err := New(run); err == nil {
		t.Error("expected error bundling an unfinalized run")
	}
}

func TestVerify_ValidBundlePassesAllChecks(t *testing.T) {
	run := buildFinalizedRun(t)
	b, err := New(run)
	if err != nil {
		t.Fatal(err)
	}

	result := Verify(b)
	if !result.Valid {
		t.Errorf("expected valid bundle, got errors: %v", result.Errors)
	}
	if !result.Checks.RollingHashValid || !result.Checks.RootHashValid || !result.Checks.MerkleRootValid ||
		!result.Checks.SpanHashesValid || !result.Checks.EventHashesValid || !result.Checks.SequenceValid {
		t.Errorf("expected all checks true, got %+v", result.Checks)
	}
}

func TestVerify_TamperedRootHashFailsButOtherChecksStillRun(t *testing.T) {
	run := buildFinalizedRun(t)
	b, err := New(run)
	if err != nil {
		t.Fatal(err)
	}
	b.PrivateRun.RootHash = "0000000000000000000000000000000000000000000000000000000000000000"

	result := Verify(b)
	if result.Valid {
		t.Error("expected invalid bundle after tampering rootHash")
	}
	if result.Checks.RootHashValid {
		t.Error("expected rootHashValid == false")
	}
	// Other independent checks should still have run and still pass.
	if !result.Checks.EventHashesValid || !result.Checks.SpanHashesValid {
		t.Error("unrelated checks should still pass despite rootHash tampering")
	}
}

func TestVerify_MissingEventHashReported(t *testing.T) {
	run := buildFinalizedRun(t)
	b, err := New(run)
	if err != nil {
		t.Fatal(err)
	}
	b.PrivateRun.Events[0].Hash = ""

	result := Verify(b)
	if result.Checks.EventHashesValid {
		t.Error("expected eventHashesValid == false")
	}
	if result.Valid {
		t.Error("expected overall invalid result")
	}
}

// TestVerify_TamperedEventPayloadFailsEventAndRollingHashChecks exercises
// spec scenario 3: modifying a single event field while leaving the
// stored Hash untouched must be caught by recomputing hashes from
// content, not by trusting the Hash field in isolation.
func TestVerify_TamperedEventPayloadFailsEventAndRollingHashChecks(t *testing.T) {
	assert := assert.New(t)

	run := buildFinalizedRun(t)
	b, err := New(run)
	assert.NoError(err)

	b.PrivateRun.Events[0].Payload["cmd"] = "rm -rf /"

	result := Verify(b)
	assert.False(result.Valid)
	assert.False(result.Checks.EventHashesValid, "tampering an event's content must fail eventHashesValid even with Hash left untouched")
	assert.False(result.Checks.RollingHashValid, "tampering an event's content must fail rollingHashValid even with Hash left untouched")
}

// TestVerify_TamperedSpanFieldFailsSpanHashCheck covers the span-level
// half of the same scenario: a span field changed without touching its
// stored Hash must be caught by recomputing the span hash from content.
func TestVerify_TamperedSpanFieldFailsSpanHashCheck(t *testing.T) {
	assert := assert.New(t)

	run := buildFinalizedRun(t)
	b, err := New(run)
	assert.NoError(err)

	b.PrivateRun.Spans[0].Name = "renamed-without-rehashing"

	result := Verify(b)
	assert.False(result.Valid)
	assert.False(result.Checks.SpanHashesValid, "tampering a span's content must fail spanHashesValid even with Hash left untouched")
}

func TestSignAndVerifySignature_RoundTrip(t *testing.T) {
	run := buildFinalizedRun(t)
	b, err := New(run)
	if err != nil {
		t.Fatal(err)
	}

	provider, err := signature.NewEd25519Provider("signer-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	signed, err := Sign(b, provider)
	if err != nil {
		t.Fatal(err)
	}
	if signed.Signature == "" || signed.SignerID != "signer-1" {
		t.Fatal("expected signed bundle to carry signature and signerId")
	}
	if b.Signature != "" {
		t.Error("Sign must not mutate the original bundle")
	}

	ok, err := VerifySignature(signed, provider)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected valid signature to verify")
	}
}

func TestVerifySignature_TamperedSignatureFails(t *testing.T) {
	run := buildFinalizedRun(t)
	b, _ := New(run)
	provider, _ := signature.NewEd25519Provider("signer-1", nil)
	signed, _ := Sign(b, provider)
	signed.Signature = signed.Signature[:len(signed.Signature)-2] + "00"

	ok, err := VerifySignature(signed, provider)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected tampered signature to fail verification")
	}
}

func TestVerifySignature_UnsignedBundleFailsWithoutError(t *testing.T) {
	run := buildFinalizedRun(t)
	b, _ := New(run)
	provider, _ := signature.NewEd25519Provider("signer-1", nil)

	ok, err := VerifySignature(b, provider)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected unsigned bundle to fail verification")
	}
}
