// Package detectors implements the seven concrete safety monitors run by
// the pipeline: statistical, compressibility, stego, timing, chain-of-
// thought, action, and eval-awareness. None of these algorithms have a
// direct analogue in the teacher repo (it verifies cryptographic proofs,
// not text), so each is built fresh in the teacher's config-struct-plus-
// constructor idiom (see pkg/strategy.Ed25519StrategyConfig) rather than
// adapted from a specific teacher file.
package detectors

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/poi-trace/core/pkg/safety"
)

const minStatisticalContentLength = 10

// englishLetterFrequency is the reference unigram distribution used by the
// statistical detector's chi-squared and KL-divergence tests, in the
// standard ETAOIN SHRDLU ordering of English letter frequency (ratios per
// Cornell/Cryptographical Mathematics frequency tables).
var englishLetterFrequency = map[rune]float64{
	'e': 0.127, 't': 0.091, 'a': 0.082, 'o': 0.075, 'i': 0.070,
	'n': 0.067, 's': 0.063, 'h': 0.061, 'r': 0.060, 'd': 0.043,
	'l': 0.040, 'c': 0.028, 'u': 0.028, 'm': 0.024, 'w': 0.024,
	'f': 0.022, 'g': 0.020, 'y': 0.020, 'p': 0.019, 'b': 0.015,
	'v': 0.010, 'k': 0.008, 'j': 0.002, 'x': 0.002, 'q': 0.001, 'z': 0.001,
}

// StatisticalDetector flags text whose letter distribution deviates from
// natural-language English.
type StatisticalDetector struct {
	Threshold float64
}

// NewStatisticalDetector builds a StatisticalDetector with the given
// exceed-threshold.
func NewStatisticalDetector(threshold float64) *StatisticalDetector {
	return &StatisticalDetector{Threshold: threshold}
}

func (d *StatisticalDetector) ID() string      { return "statistical" }
func (d *StatisticalDetector) Version() string { return "1.0.0" }

// Analyze scores the concatenated text content of every event payload.
func (d *StatisticalDetector) Analyze(ctx context.Context, input safety.Context) (*safety.MonitorResult, error) {
	text := concatenatePayloadText(input.Events)

	if len(text) < minStatisticalContentLength {
		return d.result(0, false, map[string]interface{}{"reason": "content-too-short"}), nil
	}

	chiSq := chiSquared(text)
	kl := klDivergence(text)

	chiNorm := normalizeUnbounded(chiSq, 50) // chi-sq values beyond ~50 are already maximally anomalous for 26 categories
	klNorm := normalizeUnbounded(kl, 2)      // KL divergence beyond ~2 nats is already maximally anomalous

	score := clamp01(0.6*chiNorm + 0.4*klNorm)
	return d.result(score, score > d.Threshold, map[string]interface{}{
		"chiSquared":   chiSq,
		"klDivergence": kl,
	}), nil
}

func (d *StatisticalDetector) result(score float64, exceeded bool, details map[string]interface{}) *safety.MonitorResult {
	return &safety.MonitorResult{
		MonitorID:  d.ID(),
		Version:    d.Version(),
		Score:      score,
		Threshold:  d.Threshold,
		Exceeded:   exceeded,
		TrustLevel: safety.Fragile,
		Category:   "statistical",
		Details:    details,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func letterFrequencies(text string) (map[rune]float64, int) {
	counts := make(map[rune]int)
	total := 0
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			counts[r]++
			total++
		}
	}
	freqs := make(map[rune]float64, len(counts))
	if total == 0 {
		return freqs, 0
	}
	for r, c := range counts {
		freqs[r] = float64(c) / float64(total)
	}
	return freqs, total
}

func chiSquared(text string) float64 {
	observed, total := letterFrequencies(text)
	if total == 0 {
		return 0
	}
	var sum float64
	for r, expectedFreq := range englishLetterFrequency {
		expected := expectedFreq * float64(total)
		o := observed[r] * float64(total)
		if expected == 0 {
			continue
		}
		diff := o - expected
		sum += diff * diff / expected
	}
	return sum
}

func klDivergence(text string) float64 {
	observed, total := letterFrequencies(text)
	if total == 0 {
		return 0
	}
	var sum float64
	for r, p := range observed {
		q := englishLetterFrequency[r]
		if q == 0 {
			q = 1e-6
		}
		if p == 0 {
			continue
		}
		sum += p * math.Log(p/q)
	}
	if sum < 0 {
		sum = 0
	}
	return sum
}

func normalizeUnbounded(v, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	n := v / scale
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
