package anchor

import (
	"context"
	"testing"

	"github.com/poi-trace/core/pkg/bundle"
)

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		RootHash:     "aa11",
		MerkleRoot:   "bb22",
		ManifestHash: "cc33",
	}
}

func TestCreateEntryFromBundle_IncludesMerkleRootWhenRequested(t *testing.T) {
	entry, err := CreateEntryFromBundle(testBundle(), Options{AgentID: "agent-1", IncludeMerkleRoot: true})
	if err != nil {
		t.Fatal(err)
	}
	if entry.RootHash != "aa11" || entry.ManifestHash != "cc33" || entry.MerkleRoot != "bb22" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestCreateEntryFromBundle_OmitsMerkleRootByDefault(t *testing.T) {
	entry, err := CreateEntryFromBundle(testBundle(), Options{AgentID: "agent-1"})
	if err != nil {
		t.Fatal(err)
	}
	if entry.MerkleRoot != "" {
		t.Error("expected merkleRoot to be omitted by default")
	}
}

func TestCreateEntryFromBundle_RejectsUnanchorableBundle(t *testing.T) {
	_, err := CreateEntryFromBundle(&bundle.Bundle{}, Options{AgentID: "agent-1"})
	if err == nil {
		t.Error("expected error for a bundle with no rootHash")
	}
}

func TestBuildMetadata_UsesWellKnownLabel(t *testing.T) {
	entry, _ := CreateEntryFromBundle(testBundle(), Options{AgentID: "agent-1"})
	meta := BuildMetadata(entry)
	if meta[Label] != entry {
		t.Error("expected metadata to be keyed by the well-known label")
	}
}

func TestSerializeForCBOR_SplitsLongStrings(t *testing.T) {
	entry, _ := CreateEntryFromBundle(testBundle(), Options{
		AgentID:    "agent-1",
		StorageURI: "s3://bucket/" + string(make([]byte, 100)),
	})
	meta := BuildMetadata(entry)
	serialized := SerializeForCBOR(meta)

	labelKeyStr := labelKey(Label)
	entryMap := serialized[labelKeyStr].(map[string]interface{})
	uriChunks := entryMap["storageUri"].([]string)
	if len(uriChunks) < 2 {
		t.Errorf("expected storageUri to be split into multiple chunks, got %d", len(uriChunks))
	}
	for _, c := range uriChunks {
		if len(c) > maxSegmentBytes {
			t.Errorf("chunk exceeds max segment size: len=%d", len(c))
		}
	}
}

type fakeOracle struct {
	result *OracleResult
	err    error
}

func (f *fakeOracle) Lookup(ctx context.Context, txID string) (*OracleResult, error) {
	return f.result, f.err
}

func TestVerifyAnchor_ValidMatch(t *testing.T) {
	oracle := &fakeOracle{result: &OracleResult{Label: Label, Payload: &Entry{RootHash: "aa11"}}}
	result, err := VerifyAnchor(context.Background(), oracle, "tx1", "aa11")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Errorf("expected valid match, got reason %q", result.Reason)
	}
}

func TestVerifyAnchor_RootHashMismatch(t *testing.T) {
	oracle := &fakeOracle{result: &OracleResult{Label: Label, Payload: &Entry{RootHash: "different"}}}
	result, err := VerifyAnchor(context.Background(), oracle, "tx1", "aa11")
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("expected mismatch to fail")
	}
}

func TestVerifyAnchor_NoAnchorOnTransaction(t *testing.T) {
	oracle := &fakeOracle{result: nil}
	result, err := VerifyAnchor(context.Background(), oracle, "tx1", "aa11")
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("expected missing anchor to fail")
	}
}

type fakeStore struct {
	entry *Entry
}

func (f *fakeStore) LoadAnchorEntry(ctx context.Context, rootHash string) (*Entry, error) {
	return f.entry, nil
}

func TestVerifyAgainstStore_MatchesArchivedEntry(t *testing.T) {
	store := &fakeStore{entry: &Entry{RootHash: "aa11"}}
	result, err := VerifyAgainstStore(context.Background(), store, "aa11")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("expected archived entry to verify")
	}
}

func TestVerifyAgainstStore_NoArchivedEntry(t *testing.T) {
	store := &fakeStore{entry: nil}
	result, err := VerifyAgainstStore(context.Background(), store, "aa11")
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("expected missing archived entry to fail")
	}
}
