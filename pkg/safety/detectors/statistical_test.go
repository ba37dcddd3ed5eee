package detectors

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/poi-trace/core/pkg/safety"
	"github.com/poi-trace/core/pkg/trace"
)

func contextWithText(text string) safety.Context {
	return safety.Context{
		Events: []trace.Event{
			{
				ID:        "evt-1",
				Kind:      trace.KindOutput,
				Timestamp: time.Now().UTC(),
				Payload:   map[string]interface{}{"text": text},
			},
		},
	}
}

func TestStatisticalDetector_ShortContentSkipped(t *testing.T) {
	d := NewStatisticalDetector(0.5)
	result, err := d.Analyze(context.Background(), contextWithText("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exceeded {
		t.Fatalf("expected short content not to exceed threshold")
	}
}

func TestStatisticalDetector_NaturalEnglishScoresLow(t *testing.T) {
	d := NewStatisticalDetector(0.5)
	text := "the quick brown fox jumps over the lazy dog near the riverbank every single morning"
	result, err := d.Analyze(context.Background(), contextWithText(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score > 0.5 {
		t.Fatalf("expected natural English to score low, got %f", result.Score)
	}
}

func TestStatisticalDetector_SkewedLetterDistributionScoresHigh(t *testing.T) {
	d := NewStatisticalDetector(0.1)
	text := strings.Repeat("zzzzzqqqqqxxxxxjjjjj", 10)
	result, err := d.Analyze(context.Background(), contextWithText(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exceeded {
		t.Fatalf("expected skewed letter distribution to exceed threshold, score=%f", result.Score)
	}
}
