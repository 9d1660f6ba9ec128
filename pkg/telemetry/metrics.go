package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/polisai/policy-exporter/pkg/domain"
)

var (
	metricsOnce        sync.Once
	metricsInitErr     error
	groupExportCounter metric.Int64Counter
	groupExportLatency metric.Float64Histogram
)

// GroupExport captures the fields recorded for one group.
type GroupExport struct {
	PolicyMode domain.PolicyMode
	Outcome    domain.ExportOutcome
	StatusCode int
	Duration   time.Duration
}

// RecordGroupExport emits the export counter and latency histogram. Group
// names are deliberately not used as attributes to keep cardinality bounded.
func RecordGroupExport(ctx context.Context, export GroupExport) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("policy.mode", string(export.PolicyMode)),
		attribute.String("export.outcome", string(export.Outcome)),
	}
	if export.StatusCode != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", export.StatusCode))
	}

	groupExportCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if export.Duration > 0 {
		groupExportLatency.Record(ctx, float64(export.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)

		groupExportCounter, metricsInitErr = meter.Int64Counter(
			"exporter.group.exports_total",
			metric.WithDescription("Group policy exports partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		groupExportLatency, metricsInitErr = meter.Float64Histogram(
			"exporter.group.duration_ms",
			metric.WithDescription("Observed export call latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
