// Package metrics exports worker pool and HTTP activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

const namespace = "paystub"

// PoolMetrics implements async.Observer.
type PoolMetrics struct {
	submitted  prometheus.Counter
	rejected   *prometheus.CounterVec
	finished   *prometheus.CounterVec
	depth      prometheus.Gauge
	inFlight   prometheus.Gauge
	duration   prometheus.Histogram
	confidence prometheus.Histogram
}

// NewPoolMetrics creates the collectors and registers them on reg.
func NewPoolMetrics(reg prometheus.Registerer) (*PoolMetrics, error) {
	m := &PoolMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted into the queue",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Submissions refused, by reason",
		}, []string{"reason"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"status"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently held by a worker",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from pickup to terminal status",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_confidence",
			Help:      "Overall confidence of completed documents",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.submitted, m.rejected, m.finished, m.depth, m.inFlight, m.duration, m.confidence} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PoolMetrics) JobSubmitted() { m.submitted.Inc() }

func (m *PoolMetrics) JobRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *PoolMetrics) JobStarted() { m.inFlight.Inc() }

func (m *PoolMetrics) JobFinished(status constants.JobStatus, elapsed time.Duration, confidence float64) {
	m.inFlight.Dec()
	m.finished.WithLabelValues(string(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
	if status == constants.JobStatusCompleted {
		m.confidence.Observe(confidence)
	}
}

func (m *PoolMetrics) QueueDepth(n int) { m.depth.Set(float64(n)) }
