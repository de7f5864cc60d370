package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// orchMetrics exports job lifecycle counters to Prometheus.
type orchMetrics struct {
	jobsStarted  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	activeJobs   prometheus.Gauge
	jobDuration  prometheus.Histogram
}

func newOrchMetrics(reg prometheus.Registerer) *orchMetrics {
	m := &orchMetrics{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devscope", Subsystem: "orchestrator",
			Name: "jobs_started_total", Help: "Scan jobs started, by scan type.",
		}, []string{"scan_type"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devscope", Subsystem: "orchestrator",
			Name: "jobs_finished_total", Help: "Scan jobs finished, by terminal status.",
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "orchestrator",
			Name: "active_jobs", Help: "Scan jobs currently pending or running.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "devscope", Subsystem: "orchestrator",
			Name: "job_duration_seconds", Help: "Scan job wall time.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.jobsStarted, m.jobsFinished, m.activeJobs, m.jobDuration)
	}
	return m
}
