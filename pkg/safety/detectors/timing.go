package detectors

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/poi-trace/core/pkg/safety"
	"github.com/poi-trace/core/pkg/trace"
)

const (
	minTimingSamples = 3
	maxTimingSamples = 1000
)

// TimingDetector flags inter-event delay patterns that look scheduled
// rather than organically paced: strong bimodality, periodicity, or
// unnaturally low variance in the delay sequence.
//
// The "attested" flag in Details reports whether the timestamps themselves
// were captured by a trusted clock source. TimingDetector never sets this
// true on its own; it only has an opinion about the shape of whatever
// timestamps it is given. A caller with an actual attestation mechanism
// injects it via WithAttestation.
type TimingDetector struct {
	Threshold  float64
	attested   bool
}

// NewTimingDetector builds a TimingDetector. attested defaults to false;
// use WithAttestation to mark timestamps as coming from a trusted source.
func NewTimingDetector(threshold float64) *TimingDetector {
	return &TimingDetector{Threshold: threshold}
}

// WithAttestation marks this detector's timestamp source as attested. Only
// call this when the caller can actually vouch for the clock.
func (d *TimingDetector) WithAttestation(attested bool) *TimingDetector {
	d.attested = attested
	return d
}

func (d *TimingDetector) ID() string      { return "timing" }
func (d *TimingDetector) Version() string { return "1.0.0" }

func (d *TimingDetector) Analyze(ctx context.Context, input safety.Context) (*safety.MonitorResult, error) {
	timestamps := eventTimestamps(input.Events)
	if len(timestamps) > maxTimingSamples {
		timestamps = timestamps[len(timestamps)-maxTimingSamples:]
	}
	if len(timestamps) < minTimingSamples {
		return d.result(0, false, map[string]interface{}{
			"reason":   "insufficient-samples",
			"attested": d.attested,
		}), nil
	}

	delays := delaysFromTimestamps(timestamps)
	bimodal := bimodality(delays)
	periodic := periodicity(delays)
	variance := varianceAnomaly(delays)

	score := clamp01(0.40*bimodal + 0.35*periodic + 0.25*variance)

	return d.result(score, score > d.Threshold, map[string]interface{}{
		"bimodality": bimodal,
		"periodicity": periodic,
		"varianceAnomaly": variance,
		"sampleCount": len(delays),
		"attested":   d.attested,
	}), nil
}

func (d *TimingDetector) result(score float64, exceeded bool, details map[string]interface{}) *safety.MonitorResult {
	return &safety.MonitorResult{
		MonitorID:  d.ID(),
		Version:    d.Version(),
		Score:      score,
		Threshold:  d.Threshold,
		Exceeded:   exceeded,
		TrustLevel: safety.Fragile,
		Category:   "timing",
		Details:    details,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func eventTimestamps(events []trace.Event) []time.Time {
	out := make([]time.Time, 0, len(events))
	for _, e := range events {
		out = append(out, e.Timestamp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func delaysFromTimestamps(timestamps []time.Time) []float64 {
	delays := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		delays = append(delays, timestamps[i].Sub(timestamps[i-1]).Seconds())
	}
	return delays
}

// bimodality groups delays around the median and combines the separation
// between the two group means with the variance ratio (F-statistic-like)
// between groups and within groups. High separation plus high F-ratio
// means the delays cluster into two distinct bands, a hallmark of
// scripted pacing.
func bimodality(delays []float64) float64 {
	if len(delays) < 4 {
		return 0
	}
	sorted := append([]float64(nil), delays...)
	sort.Float64s(sorted)
	median := percentile(sorted, 0.5)

	var low, high []float64
	for _, v := range delays {
		if v <= median {
			low = append(low, v)
		} else {
			high = append(high, v)
		}
	}
	if len(low) == 0 || len(high) == 0 {
		return 0
	}

	lowMean := mean(low)
	highMean := mean(high)
	overallMean := mean(delays)
	overallVar := variance(delays, overallMean)
	if overallVar == 0 {
		return 0
	}

	separation := math.Abs(highMean-lowMean) / (math.Sqrt(overallVar) + 1e-9)
	betweenVar := (float64(len(low))*sq(lowMean-overallMean) + float64(len(high))*sq(highMean-overallMean)) / float64(len(delays))
	fRatio := betweenVar / (overallVar + 1e-9)

	return clamp01(0.5*normalizeUnbounded(separation, 3) + 0.5*normalizeUnbounded(fRatio, 1))
}

// periodicity computes the autocorrelation of the delay sequence at lags
// 1..min(20, n/2) and returns the largest value found, which is high when
// the sequence repeats at some fixed interval.
func periodicity(delays []float64) float64 {
	n := len(delays)
	if n < 4 {
		return 0
	}
	maxLag := 20
	if n/2 < maxLag {
		maxLag = n / 2
	}
	if maxLag < 1 {
		return 0
	}

	m := mean(delays)
	var denom float64
	for _, v := range delays {
		denom += sq(v - m)
	}
	if denom == 0 {
		return 0
	}

	var best float64
	for lag := 1; lag <= maxLag; lag++ {
		var num float64
		for i := 0; i+lag < n; i++ {
			num += (delays[i] - m) * (delays[i+lag] - m)
		}
		autocorr := math.Abs(num / denom)
		if autocorr > best {
			best = autocorr
		}
	}
	return clamp01(best)
}

// varianceAnomaly flags unnaturally regular spacing via the coefficient of
// variation: very low CV means the delays are suspiciously uniform.
func varianceAnomaly(delays []float64) float64 {
	m := mean(delays)
	if m == 0 {
		return 0
	}
	sd := math.Sqrt(variance(delays, m))
	cv := sd / m
	switch {
	case cv < 0.05:
		return 1.0
	case cv < 0.1:
		return 0.7
	case cv < 0.2:
		return 0.3
	default:
		return 0
	}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func variance(vs []float64, m float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += sq(v - m)
	}
	return sum / float64(len(vs))
}

func sq(v float64) float64 { return v * v }

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
