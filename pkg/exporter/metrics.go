package exporter

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polisai/policy-exporter/pkg/domain"
)

// Metrics holds the Prometheus metrics of a run. A one-shot job has no
// scrape endpoint, so the registry is written out in the node-exporter
// textfile format at the end of the run.
type Metrics struct {
	groupsListed   prometheus.Gauge
	groupsMatched  prometheus.Gauge
	groupExports   *prometheus.CounterVec
	exportDuration prometheus.Histogram
	lastRunTime    prometheus.Gauge
	lastRunSuccess prometheus.Gauge

	registry *prometheus.Registry
	now      func() time.Time
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		groupsListed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "policy_exporter_groups_listed",
			Help: "Groups returned by the controller in the last run",
		}),
		groupsMatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "policy_exporter_groups_matched",
			Help: "Groups whose namespace is allow-listed in the last run",
		}),
		groupExports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_exporter_group_exports_total",
				Help: "Group exports by outcome",
			},
			[]string{"outcome"},
		),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_exporter_export_duration_seconds",
			Help:    "Time spent exporting and writing one group",
			Buckets: prometheus.DefBuckets,
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "policy_exporter_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "policy_exporter_last_run_success",
			Help: "1 if the last run finished without error and skipped no group",
		}),
		registry: registry,
		now:      time.Now,
	}

	// Pre-create outcome series so a run with no failures still reports 0.
	for _, outcome := range []domain.ExportOutcome{domain.OutcomeExported, domain.OutcomeFailed, domain.OutcomeRejected} {
		m.groupExports.WithLabelValues(string(outcome))
	}

	registry.MustRegister(
		m.groupsListed,
		m.groupsMatched,
		m.groupExports,
		m.exportDuration,
		m.lastRunTime,
		m.lastRunSuccess,
	)

	return m
}

// ObserveExport records the outcome of one group.
func (m *Metrics) ObserveExport(outcome domain.ExportOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.groupExports.WithLabelValues(string(outcome)).Inc()
	m.exportDuration.Observe(duration.Seconds())
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(summary domain.Summary, finished bool) {
	if m == nil {
		return
	}
	m.groupsListed.Set(float64(summary.Listed))
	m.groupsMatched.Set(float64(summary.Matched))
	m.lastRunTime.Set(float64(m.now().Unix()))
	if finished && summary.Complete() {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the registry to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
