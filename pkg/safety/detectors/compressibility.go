package detectors

import (
	"context"
	"math"
	"time"

	"github.com/poi-trace/core/pkg/safety"
)

// naturalLanguageEntropyLow and High bound the expected Shannon entropy, in
// bits per character, of ordinary natural-language text.
const (
	naturalLanguageEntropyLow  = 3.5
	naturalLanguageEntropyHigh = 5.0
)

// CompressibilityDetector flags text whose entropy profile falls far
// outside the range expected of natural language, which is often a sign of
// encoded, compressed, or otherwise machine-generated payloads.
type CompressibilityDetector struct {
	Threshold float64
}

// NewCompressibilityDetector builds a CompressibilityDetector.
func NewCompressibilityDetector(threshold float64) *CompressibilityDetector {
	return &CompressibilityDetector{Threshold: threshold}
}

func (d *CompressibilityDetector) ID() string      { return "compressibility" }
func (d *CompressibilityDetector) Version() string { return "1.0.0" }

func (d *CompressibilityDetector) Analyze(ctx context.Context, input safety.Context) (*safety.MonitorResult, error) {
	text := concatenatePayloadText(input.Events)
	if len(text) == 0 {
		return d.result(0, false, map[string]interface{}{"reason": "no-content"}), nil
	}

	charEnt := charEntropy(text)
	byteEnt := byteEntropy([]byte(text))
	bigramEnt := bigramEntropy(text)
	uniqueRatio := uniqueCharRatio(text)

	score := clamp01(
		0.35*deviationFromRange(charEnt, naturalLanguageEntropyLow, naturalLanguageEntropyHigh) +
			0.25*deviationFromRange(byteEnt, naturalLanguageEntropyLow, naturalLanguageEntropyHigh) +
			0.20*deviationFromRange(bigramEnt, naturalLanguageEntropyLow, naturalLanguageEntropyHigh) +
			0.20*uniqueRatio,
	)

	return d.result(score, score > d.Threshold, map[string]interface{}{
		"charEntropy":   charEnt,
		"byteEntropy":   byteEnt,
		"bigramEntropy": bigramEnt,
		"uniqueRatio":   uniqueRatio,
	}), nil
}

func (d *CompressibilityDetector) result(score float64, exceeded bool, details map[string]interface{}) *safety.MonitorResult {
	return &safety.MonitorResult{
		MonitorID:  d.ID(),
		Version:    d.Version(),
		Score:      score,
		Threshold:  d.Threshold,
		Exceeded:   exceeded,
		TrustLevel: safety.Fragile,
		Category:   "compressibility",
		Details:    details,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// deviationFromRange is 0 inside [low, high] and rises linearly toward 1 at
// the extremes (0 bits/char or 8 bits/char for byte-level entropy).
func deviationFromRange(v, low, high float64) float64 {
	if v >= low && v <= high {
		return 0
	}
	if v < low {
		if low == 0 {
			return 1
		}
		return clamp01((low - v) / low)
	}
	const maxEntropy = 8.0
	if high >= maxEntropy {
		return 1
	}
	return clamp01((v - high) / (maxEntropy - high))
}

func charEntropy(text string) float64 {
	counts := make(map[rune]int)
	n := 0
	for _, r := range text {
		counts[r]++
		n++
	}
	return shannonEntropy(counts, n)
}

func byteEntropy(data []byte) float64 {
	counts := make(map[byte]int)
	for _, b := range data {
		counts[b]++
	}
	n := len(data)
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

func bigramEntropy(text string) float64 {
	runes := []rune(text)
	if len(runes) < 2 {
		return 0
	}
	counts := make(map[[2]rune]int)
	n := 0
	for i := 0; i < len(runes)-1; i++ {
		counts[[2]rune{runes[i], runes[i+1]}]++
		n++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

func shannonEntropy(counts map[rune]int, n int) float64 {
	if n == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

func uniqueCharRatio(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	seen := make(map[rune]bool)
	for _, r := range runes {
		seen[r] = true
	}
	return float64(len(seen)) / float64(len(runes))
}
