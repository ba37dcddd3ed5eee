package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/poi-trace/core/pkg/safety"
	"github.com/poi-trace/core/pkg/trace"
)

func eventsAtOffsets(offsets []time.Duration) []trace.Event {
	base := time.Unix(1700000000, 0).UTC()
	events := make([]trace.Event, 0, len(offsets))
	for i, off := range offsets {
		events = append(events, trace.Event{
			ID:        "evt",
			Kind:      trace.KindObservation,
			Timestamp: base.Add(off),
			Payload:   map[string]interface{}{"seq": i},
		})
	}
	return events
}

func TestTimingDetector_TooFewSamples(t *testing.T) {
	d := NewTimingDetector(0.5)
	ctx := safety.Context{Events: eventsAtOffsets([]time.Duration{0, time.Second})}
	result, err := d.Analyze(context.Background(), ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exceeded {
		t.Fatalf("expected insufficient samples not to exceed threshold")
	}
	if result.Details["attested"].(bool) != false {
		t.Fatalf("expected attested=false by default")
	}
}

func TestTimingDetector_UniformIntervalsFlaggedAsLowVariance(t *testing.T) {
	d := NewTimingDetector(0.2)
	offsets := make([]time.Duration, 0, 20)
	for i := 0; i < 20; i++ {
		offsets = append(offsets, time.Duration(i)*5*time.Second)
	}
	ctx := safety.Context{Events: eventsAtOffsets(offsets)}
	result, err := d.Analyze(context.Background(), ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exceeded {
		t.Fatalf("expected perfectly uniform spacing to exceed threshold, score=%f", result.Score)
	}
}

func TestTimingDetector_AttestationFlagSurfacesInDetails(t *testing.T) {
	d := NewTimingDetector(0.9).WithAttestation(true)
	ctx := safety.Context{Events: eventsAtOffsets([]time.Duration{0, time.Second, 3 * time.Second, 4 * time.Second})}
	result, err := d.Analyze(context.Background(), ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Details["attested"].(bool) != true {
		t.Fatalf("expected attested=true to surface in details when injected")
	}
}
