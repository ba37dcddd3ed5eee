package safety

import (
	"context"
	"time"

	"github.com/poi-trace/core/pkg/trace"
)

// AlertLevel classifies a monitor's alarm event.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// MetricsRecorder receives per-monitor outcomes for a metrics collector to
// export, e.g. as Prometheus counters/histograms. Defined here rather than
// importing pkg/metrics so pkg/safety never depends on prometheus directly;
// pkg/metrics.Collectors satisfies this structurally.
type MetricsRecorder interface {
	RecordMonitorRun(monitorID, result string, score float64, durationSeconds float64)
}

// RunOptions configures a Pipeline.Run invocation.
type RunOptions struct {
	AgentID           string
	BaseRootHash      string
	BaseManifestHash  string
	ConfigFingerprint ConfigFingerprint
	Metrics           MetricsRecorder
}

// Pipeline runs every registered detector over a base trace in post-hoc
// mode, producing a fresh report trace: one span per monitor, a result
// event, and an alarm event, closed and finalized. Every detector runs
// regardless of an earlier one's outcome, mirroring the teacher's
// UnifiedVerifier "accumulate across independent checks" idiom.
type Pipeline struct {
	registry *Registry
}

// NewPipeline builds a Pipeline over registry.
func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// Run executes every registered detector against input and returns the
// frozen report trace plus the individual results in registration order.
func (p *Pipeline) Run(ctx context.Context, input Context, opts RunOptions) (*trace.Run, []*MonitorResult, error) {
	configHash, err := ComputeConfigHash(FingerprintFromRegistry(p.registry, opts.ConfigFingerprint))
	if err != nil {
		return nil, nil, err
	}

	report := trace.CreateTrace(trace.CreateOptions{
		AgentID: opts.AgentID,
		Metadata: map[string]interface{}{
			"baseRootHash":      opts.BaseRootHash,
			"baseManifestHash":  opts.BaseManifestHash,
			"monitorConfigHash": configHash,
		},
	})

	var results []*MonitorResult
	for _, detector := range p.registry.List() {
		started := time.Now()
		result, runErr := p.runOne(ctx, report, detector, input)
		elapsed := time.Since(started).Seconds()
		if opts.Metrics != nil {
			switch {
			case runErr != nil:
				opts.Metrics.RecordMonitorRun(detector.ID(), "error", 0, elapsed)
			case result.Exceeded:
				opts.Metrics.RecordMonitorRun(detector.ID(), "exceeded", result.Score, elapsed)
			default:
				opts.Metrics.RecordMonitorRun(detector.ID(), "ok", result.Score, elapsed)
			}
		}
		if runErr != nil {
			// A detector error is itself recorded as a fragile, non-exceeded
			// result so one failing monitor never aborts the others.
			result = &MonitorResult{
				MonitorID:  detector.ID(),
				Version:    detector.Version(),
				TrustLevel: Fragile,
				Category:   "error",
				Details:    map[string]interface{}{"error": runErr.Error()},
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			}
		}
		results = append(results, result)
	}

	finalized, err := report.Finalize(ctx)
	if err != nil {
		return nil, nil, err
	}
	return finalized, results, nil
}

func (p *Pipeline) runOne(ctx context.Context, report *trace.Run, detector Detector, input Context) (*MonitorResult, error) {
	span, err := report.AddSpan(trace.SpanOptions{
		Name:       "monitor:" + detector.ID(),
		Visibility: trace.VisibilityPublic,
	})
	if err != nil {
		return nil, err
	}

	result, err := detector.Analyze(ctx, input)
	if err != nil {
		report.CloseSpan(span.ID, trace.SpanFailed)
		return nil, err
	}

	if _, err := report.AddEvent(span.ID, trace.EventInput{
		Kind:    trace.KindObservation,
		Payload: map[string]interface{}{"result": result},
	}); err != nil {
		return nil, err
	}

	alert := AlertInfo
	if result.Exceeded {
		alert = AlertWarning
	}
	if result.Score > 1.5*result.Threshold {
		alert = AlertCritical
	}
	if _, err := report.AddEvent(span.ID, trace.EventInput{
		Kind: trace.KindCustom,
		Payload: map[string]interface{}{
			"type":       "alarm",
			"alertLevel": alert,
			"monitorId":  detector.ID(),
		},
	}); err != nil {
		return nil, err
	}

	if err := report.CloseSpan(span.ID); err != nil {
		return nil, err
	}
	return result, nil
}
