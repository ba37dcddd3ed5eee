// Package safety implements the post-hoc safety-monitor pipeline: a
// registry of pluggable detectors run over a finalized trace, each
// producing a MonitorResult folded into a report trace of its own.
// Grounded in the teacher's pkg/strategy.Registry (register-fails-on-
// duplicate-or-empty-id, RWMutex-guarded map, global singleton) generalized
// from attestation/chain strategies to safety detectors, and in
// pkg/verification.UnifiedVerifier's "run every check, never short-circuit"
// idiom, generalized from a fixed 4-level proof to an arbitrary detector
// set.
package safety

import (
	"context"

	"github.com/poi-trace/core/pkg/trace"
)

// TrustLevel classifies how actionable a detector's positive finding is on
// its own.
type TrustLevel string

const (
	// Authoritative findings crossed an enforceable policy and are
	// actionable in isolation.
	Authoritative TrustLevel = "authoritative"
	// Fragile findings are statistical signals interpretable only in
	// aggregate or correlated with other signals.
	Fragile TrustLevel = "fragile"
)

// Context is the view of a trace a detector analyzes.
type Context struct {
	BaseTrace *trace.Run
	Events    []trace.Event
	Spans     []trace.Span
	Metadata  map[string]interface{}
}

// MonitorResult is what a single detector run produces.
type MonitorResult struct {
	MonitorID  string                 `json:"monitorId"`
	Version    string                 `json:"version"`
	Score      float64                `json:"score"`
	Threshold  float64                `json:"threshold"`
	Exceeded   bool                   `json:"exceeded"`
	TrustLevel TrustLevel             `json:"trustLevel"`
	Category   string                 `json:"category"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Detector is the contract every safety monitor implements.
type Detector interface {
	ID() string
	Version() string
	Analyze(ctx context.Context, input Context) (*MonitorResult, error)
}
