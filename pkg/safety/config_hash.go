package safety

import "github.com/poi-trace/core/pkg/codec"

// CodeIdentity pins the pipeline's running code to a specific build.
type CodeIdentity struct {
	GitCommitHash      string `json:"gitCommitHash"`
	BuildArtifactDigest string `json:"buildArtifactDigest"`
}

// ConfigFingerprint is everything that, if changed, must change
// monitorConfigHash: the set of monitors run, their versions, the code and
// prompt/threshold/scoring material behind them, and the runtime they ran
// in.
type ConfigFingerprint struct {
	MonitorIDs          []string     `json:"monitorIds"`
	MonitorVersions      []string     `json:"monitorVersions"`
	CodeIdentity         CodeIdentity `json:"codeIdentity"`
	PromptTemplatesHash  string       `json:"promptTemplatesHash"`
	ThresholdsHash       string       `json:"thresholdsHash"`
	ScoringWeightsHash   string       `json:"scoringWeightsHash"`
	ThresholdPolicyID    string       `json:"thresholdPolicyId"`
	RuntimeIdentity      string       `json:"runtimeIdentity"`
}

// ComputeConfigHash canonicalizes fp and returns its SHA-256 hex digest.
// Any change to any field of fp changes the result.
func ComputeConfigHash(fp ConfigFingerprint) (string, error) {
	return codec.CanonicalHashHex(fp)
}

// FingerprintFromRegistry builds a ConfigFingerprint's monitor-identifying
// fields from a Registry's current detector set, in registration order.
func FingerprintFromRegistry(r *Registry, rest ConfigFingerprint) ConfigFingerprint {
	detectors := r.List()
	ids := make([]string, len(detectors))
	versions := make([]string, len(detectors))
	for i, d := range detectors {
		ids[i] = d.ID()
		versions[i] = d.Version()
	}
	rest.MonitorIDs = ids
	rest.MonitorVersions = versions
	return rest
}
