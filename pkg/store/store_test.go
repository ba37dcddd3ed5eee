package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/poi-trace/core/pkg/anchor"
	"github.com/poi-trace/core/pkg/config"
)

func buildTestAnchorEntry() *anchor.Entry {
	return &anchor.Entry{
		Type:         anchor.EntryType,
		AgentID:      "agent-1",
		RootHash:     "deadbeef",
		ManifestHash: "cafebabe",
		StorageURI:   "file:///tmp/run",
		Timestamp:    time.Now().UTC(),
	}
}

// testClient connects to a real Postgres instance when POI_TRACE_TEST_DB is
// set, and runs migrations against it. Store tests are skipped otherwise,
// matching the teacher's ProofArtifactRepository test precedent of gating
// on an env var rather than mocking database/sql.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("POI_TRACE_TEST_DB")
	if dsn == "" {
		t.Skip("POI_TRACE_TEST_DB not set, skipping store integration tests")
	}

	client, err := NewClient(config.StoreConfig{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.MigrateUp(context.Background()); err != nil {
		t.Fatalf("unexpected error running migrations: %v", err)
	}
	return client
}

func TestNewClient_RejectsEmptyDSN(t *testing.T) {
	_, err := NewClient(config.StoreConfig{})
	if err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrateUp_IsIdempotent(t *testing.T) {
	client := testClient(t)
	if err := client.MigrateUp(context.Background()); err != nil {
		t.Fatalf("expected re-running migrations to be a no-op, got: %v", err)
	}
}

func TestSaveAndLoadAnchorEntry_RoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	entry := buildTestAnchorEntry()
	if err := client.SaveAnchorEntry(ctx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := client.LoadAnchorEntry(ctx, entry.RootHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.RootHash != entry.RootHash {
		t.Fatalf("expected round-tripped root hash %q, got %q", entry.RootHash, loaded.RootHash)
	}
}
