package safety

import "testing"

func TestComputeConfigHash_DeterministicForEquivalentInput(t *testing.T) {
	fp := ConfigFingerprint{
		MonitorIDs:      []string{"statistical", "stego"},
		MonitorVersions: []string{"1.0.0", "1.0.0"},
		CodeIdentity:    CodeIdentity{GitCommitHash: "abc123"},
	}
	h1, err := ComputeConfigHash(fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := ComputeConfigHash(fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %s and %s", h1, h2)
	}
}

func TestComputeConfigHash_ChangesWithMonitorSet(t *testing.T) {
	base := ConfigFingerprint{MonitorIDs: []string{"statistical"}, MonitorVersions: []string{"1.0.0"}}
	changed := ConfigFingerprint{MonitorIDs: []string{"statistical", "stego"}, MonitorVersions: []string{"1.0.0", "1.0.0"}}

	h1, err := ComputeConfigHash(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := ComputeConfigHash(changed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected hash to change when monitor set changes")
	}
}

func TestFingerprintFromRegistry_PopulatesMonitorFields(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDetector{id: "statistical", version: "1.0.0"})
	r.Register(&stubDetector{id: "stego", version: "1.0.0"})

	fp := FingerprintFromRegistry(r, ConfigFingerprint{ThresholdPolicyID: "default"})
	if len(fp.MonitorIDs) != 2 || fp.MonitorIDs[0] != "statistical" || fp.MonitorIDs[1] != "stego" {
		t.Fatalf("expected monitor ids in registration order, got %v", fp.MonitorIDs)
	}
	if fp.ThresholdPolicyID != "default" {
		t.Fatalf("expected rest fields preserved, got %q", fp.ThresholdPolicyID)
	}
}
