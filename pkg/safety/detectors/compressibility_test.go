package detectors

import (
	"context"
	"strings"
	"testing"
)

func TestCompressibilityDetector_NaturalTextLowScore(t *testing.T) {
	d := NewCompressibilityDetector(0.5)
	text := "the weather today is mild with scattered clouds and a light breeze from the west"
	result, err := d.Analyze(context.Background(), contextWithText(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exceeded {
		t.Fatalf("expected natural text not to exceed threshold, score=%f", result.Score)
	}
}

func TestCompressibilityDetector_RepetitiveLowEntropyScoresHigh(t *testing.T) {
	d := NewCompressibilityDetector(0.3)
	text := strings.Repeat("a", 200)
	result, err := d.Analyze(context.Background(), contextWithText(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exceeded {
		t.Fatalf("expected near-zero-entropy text to exceed threshold, score=%f", result.Score)
	}
}

func TestCompressibilityDetector_EmptyContent(t *testing.T) {
	d := NewCompressibilityDetector(0.5)
	result, err := d.Analyze(context.Background(), contextWithText(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("expected zero score for empty content, got %f", result.Score)
	}
}
