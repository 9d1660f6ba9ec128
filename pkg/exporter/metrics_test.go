package exporter

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/policy-exporter/pkg/domain"
)

func TestRunRecordsMetrics(t *testing.T) {
	api := newFakeController(
		domain.Group{Name: "g1", Domain: "prod"},
		domain.Group{Name: "g2", Domain: "prod"},
		domain.Group{Name: "a/b", Domain: "prod"},
		domain.Group{Name: "g3", Domain: "dev"},
	)
	api.exports["g2"] = fakeExport{status: http.StatusForbidden}

	metrics := NewMetrics()
	metrics.now = func() time.Time { return time.Unix(1700000000, 0) }

	exp, err := New(api, Options{OutputDir: t.TempDir(), Metrics: metrics})
	require.NoError(t, err)

	_, err = exp.Run(context.Background(), []string{"prod"}, domain.PolicyModeProtect)
	require.NoError(t, err)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.groupsListed))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.groupsMatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.groupExports.WithLabelValues("exported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.groupExports.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.groupExports.WithLabelValues("rejected")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(metrics.lastRunTime))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.lastRunSuccess))
}

func TestObserveRunSuccess(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveRun(domain.Summary{Listed: 2, Matched: 1, Exported: 1}, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lastRunSuccess))

	metrics.ObserveRun(domain.Summary{Listed: 2, Matched: 1, Exported: 1}, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.lastRunSuccess))
}

func TestNilMetricsAreIgnored(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveExport(domain.OutcomeExported, time.Second)
	metrics.ObserveRun(domain.Summary{}, true)
}

func TestWriteTextfile(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveExport(domain.OutcomeExported, 200*time.Millisecond)
	metrics.ObserveRun(domain.Summary{Listed: 1, Matched: 1, Exported: 1}, true)

	path := filepath.Join(t.TempDir(), "policy_exporter.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `policy_exporter_group_exports_total{outcome="exported"} 1`), text)
	assert.True(t, strings.Contains(text, `policy_exporter_group_exports_total{outcome="failed"} 0`), text)
	assert.Contains(t, text, "policy_exporter_last_run_success 1")
	assert.Contains(t, text, "policy_exporter_export_duration_seconds_count 1")
}

func TestWriteTextfileMissingDir(t *testing.T) {
	metrics := NewMetrics()
	err := metrics.WriteTextfile(filepath.Join(t.TempDir(), "missing", "m.prom"))
	assert.Error(t, err)
}
