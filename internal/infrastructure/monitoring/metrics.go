package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run's collectors and their registry
type Metrics struct {
	Registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RunsTotal       *prometheus.CounterVec
	LastRun         prometheus.Gauge
}

// NewMetrics creates collectors registered on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_stage_duration_seconds",
				Help:    "Time spent in each orchestrator stage",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_http_requests_total",
				Help: "Outbound HTTP requests by host and status",
			},
			[]string{"host", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_http_request_duration_seconds",
				Help:    "Outbound HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_runs_total",
				Help: "Finished runs by outcome",
			},
			[]string{"outcome"},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}

	m.Registry.MustRegister(m.StageDuration, m.RequestsTotal, m.RequestDuration, m.RunsTotal, m.LastRun)
	return m
}

// ObserveStage records the time spent in a stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRequest records one outbound request. status 0 means a transport failure.
func (m *Metrics) ObserveRequest(host string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(host, label).Inc()
	m.RequestDuration.WithLabelValues(host).Observe(d.Seconds())
}

// RunFinished records the outcome of a run
func (m *Metrics) RunFinished(err error, at time.Time) {
	if m == nil {
		return
	}
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.LastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
