package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poi-trace/core/pkg/bundle"
	"github.com/poi-trace/core/pkg/trace"
)

func buildBundle(t *testing.T, nSpans int) *bundle.Bundle {
	t.Helper()
	run := trace.CreateTrace(trace.CreateOptions{AgentID: "agent-1"})
	for i := 0; i < nSpans; i++ {
		span, err := run.AddSpan(trace.SpanOptions{Name: "span"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := run.AddEvent(span.ID, trace.EventInput{Kind: trace.KindCommand, Payload: map[string]interface{}{"i": i}}); err != nil {
			t.Fatal(err)
		}
		if err := run.CloseSpan(span.ID); err != nil {
			t.Fatal(err)
		}
	}
	finalized, err := run.Finalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := bundle.New(finalized)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCreate_SplitsIntoChunksUnderSizeBound(t *testing.T) {
	b := buildBundle(t, 10)
	m, updated, err := Create(b, Options{ChunkSize: 200})
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalChunks == 0 {
		t.Fatal("expected at least one chunk")
	}
	if updated.ManifestHash != m.ManifestHash {
		t.Error("expected bundle copy to carry the manifest hash")
	}
	if b.ManifestHash != "" {
		t.Error("Create must not mutate the original bundle")
	}

	seen := make(map[string]bool)
	for _, c := range m.Chunks {
		for _, id := range c.SpanIDs {
			if seen[id] {
				t.Errorf("span %s appears in more than one chunk", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 10 {
		t.Errorf("expected all 10 spans covered across chunks, got %d", len(seen))
	}
}

func TestCreate_RejectsNonPositiveChunkSize(t *testing.T) {
	b := buildBundle(t, 1)
	if _, _, err := Create(b, Options{ChunkSize: 0}); err == nil {
		t.Error("expected error for chunkSize <= 0")
	}
}

func TestManifestHash_ChangesWithContent(t *testing.T) {
	b := buildBundle(t, 3)
	m1, _, err := Create(b, Options{ChunkSize: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}

	b2 := buildBundle(t, 4)
	m2, _, err := Create(b2, Options{ChunkSize: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}

	if m1.ManifestHash == m2.ManifestHash {
		t.Error("expected different manifest hashes for different span counts")
	}
}

func TestWriteDirReadDir_RoundTrip(t *testing.T) {
	b := buildBundle(t, 5)
	m, _, err := Create(b, Options{ChunkSize: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}

	payloads := make([][]byte, len(m.Chunks))
	for i := range payloads {
		payloads[i] = []byte("chunk-payload-" + string(rune('a'+i)))
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := WriteDir(dir, m, payloads); err != nil {
		t.Fatal(err)
	}

	restored, restoredPayloads, err := ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if restored.ManifestHash != m.ManifestHash {
		t.Error("manifest hash should survive the round trip")
	}
	for i := range payloads {
		if string(restoredPayloads[i]) != string(payloads[i]) {
			t.Errorf("chunk %d payload mismatch", i)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		t.Errorf("expected manifest.json to exist: %v", err)
	}
}
