// Package metrics registers the Prometheus collectors for the safety
// pipeline and trace builder backpressure. Grounded in the teacher's
// prometheus/client_golang usage pattern (NewCounterVec/NewHistogramVec
// registered against a namespace/subsystem, as in
// kubernetes-dns/pkg/sidecar/metrics.go's defineDnsmasqMetrics), generalized
// from DNS cache counters to monitor-run outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "poi_trace"

// Collectors groups every metric this module exports. A single instance is
// constructed at startup and threaded into safety.Pipeline and trace.Run
// call sites that need to record outcomes.
type Collectors struct {
	MonitorRunsTotal         *prometheus.CounterVec
	MonitorScore             *prometheus.HistogramVec
	MonitorDurationSeconds   *prometheus.HistogramVec
	TraceEventsRejectedTotal *prometheus.CounterVec
}

// NewCollectors builds and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		MonitorRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "monitor_runs_total",
			Help:      "Count of safety monitor runs by monitor id and outcome.",
		}, []string{"monitor_id", "result"}),
		MonitorScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "monitor_score",
			Help:      "Distribution of safety monitor scores by monitor id.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"monitor_id"}),
		MonitorDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "monitor_duration_seconds",
			Help:      "Wall-clock duration of a single monitor's Analyze call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"monitor_id"}),
		TraceEventsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trace",
			Name:      "events_rejected_total",
			Help:      "Count of AddEvent calls rejected by the trace builder, by reason.",
		}, []string{"reason"}),
	}

	collectors := []prometheus.Collector{
		c.MonitorRunsTotal, c.MonitorScore, c.MonitorDurationSeconds, c.TraceEventsRejectedTotal,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordMonitorRun records one monitor's outcome, score, and duration.
func (c *Collectors) RecordMonitorRun(monitorID, result string, score float64, durationSeconds float64) {
	if c == nil {
		return
	}
	c.MonitorRunsTotal.WithLabelValues(monitorID, result).Inc()
	c.MonitorScore.WithLabelValues(monitorID).Observe(score)
	c.MonitorDurationSeconds.WithLabelValues(monitorID).Observe(durationSeconds)
}

// RecordEventRejected records one AddEvent call rejected for reason
// (e.g. "backpressure", "span-closed").
func (c *Collectors) RecordEventRejected(reason string) {
	if c == nil {
		return
	}
	c.TraceEventsRejectedTotal.WithLabelValues(reason).Inc()
}
