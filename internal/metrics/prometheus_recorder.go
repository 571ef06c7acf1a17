package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	buildOutcome   *prom.CounterVec
	buildDuration  prom.Histogram
	streamEvents   *prom.CounterVec
	lockContention prom.Counter
	archiveOps     *prom.CounterVec
	uploadBytes    *prom.HistogramVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "bookbuilder",
			Name:      "build_duration_seconds",
			Help:      "Wall time from admission to resolved outcome",
			Buckets:   prom.ExponentialBuckets(10, 2, 10),
		})
		pr.streamEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "stream_events_total",
			Help:      "Build stream events by kind",
		}, []string{"kind"})
		pr.lockContention = prom.NewCounter(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "lock_contention_total",
			Help:      "Build requests denied by the per-project rate limit",
		})
		pr.archiveOps = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "archive_operations_total",
			Help:      "Archive provider operations by kind and result",
		}, []string{"op", "result"})
		pr.uploadBytes = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "bookbuilder",
			Name:      "archive_upload_bytes",
			Help:      "Uploaded artifact sizes per resource type",
			Buckets:   prom.ExponentialBuckets(1<<20, 4, 8),
		}, []string{"resource"})
		reg.MustRegister(pr.buildOutcome, pr.buildDuration, pr.streamEvents, pr.lockContention, pr.archiveOps, pr.uploadBytes)
	})
	return pr
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStreamEvent(kind string) {
	if p == nil || p.streamEvents == nil {
		return
	}
	p.streamEvents.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncLockContention() {
	if p == nil || p.lockContention == nil {
		return
	}
	p.lockContention.Inc()
}

func (p *PrometheusRecorder) IncArchiveOp(op string, success bool) {
	if p == nil || p.archiveOps == nil {
		return
	}
	result := "failed"
	if success {
		result = "success"
	}
	p.archiveOps.WithLabelValues(op, result).Inc()
}

func (p *PrometheusRecorder) ObserveUploadBytes(resource string, bytes int64) {
	if p == nil || p.uploadBytes == nil {
		return
	}
	p.uploadBytes.WithLabelValues(resource).Observe(float64(bytes))
}
