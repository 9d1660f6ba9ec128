package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/policy-exporter/pkg/domain"
	"github.com/polisai/policy-exporter/pkg/logging"
	"github.com/polisai/policy-exporter/pkg/neuvector"
	"github.com/polisai/policy-exporter/pkg/telemetry"
)

const (
	pathGroups      = "/group"
	pathExportGroup = "/file/group"

	artifactPerm = 0o644
	logBodyLimit = 512
)

// Controller is the subset of the controller API the exporter needs.
type Controller interface {
	Get(ctx context.Context, path string) (*neuvector.Response, error)
	Post(ctx context.Context, path string, payload any) (*neuvector.Response, error)
}

// Options configures an Exporter.
type Options struct {
	OutputDir string
	Logger    *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
	// Redactor scrubs controller responses echoed into debug logs.
	Redactor *logging.Redactor
}

// Exporter runs the export pipeline against one controller.
type Exporter struct {
	api       Controller
	outputDir string
	logger    *slog.Logger
	metrics   *Metrics
	redactor  *logging.Redactor
	tracer    trace.Tracer
}

// New returns an Exporter writing into opts.OutputDir. The directory must
// already exist; it is never created.
func New(api Controller, opts Options) (*Exporter, error) {
	if api == nil {
		return nil, errors.New("exporter: controller is required")
	}
	if err := checkOutputDir(opts.OutputDir); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Exporter{
		api:       api,
		outputDir: opts.OutputDir,
		logger:    logger,
		metrics:   opts.Metrics,
		redactor:  opts.Redactor,
		tracer:    telemetry.Tracer(),
	}, nil
}

func checkOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrOutputDirMissing, dir)
		}
		return fmt.Errorf("stat output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrOutputDirMissing, dir)
	}
	return nil
}

// ListGroups returns the names of the groups whose domain is in namespaces,
// in controller order. A non-200 listing yields an empty result and no
// error; a 200 listing that cannot be decoded is an error.
func (e *Exporter) ListGroups(ctx context.Context, namespaces domain.NamespaceSet) ([]string, error) {
	names, _, err := e.listGroups(ctx, namespaces)
	return names, err
}

func (e *Exporter) listGroups(ctx context.Context, namespaces domain.NamespaceSet) ([]string, int, error) {
	resp, err := e.api.Get(ctx, pathGroups)
	if err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	if !resp.OK() {
		e.logger.Warn("group listing failed, nothing to export",
			"status", resp.StatusCode,
			"body", e.redactBody(resp.Body),
		)
		return []string{}, 0, nil
	}

	var list domain.GroupList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, 0, fmt.Errorf("%w: decode group list: %w", domain.ErrMalformedResponse, err)
	}
	if list.Groups == nil {
		return nil, 0, fmt.Errorf("%w: group list has no \"groups\" field", domain.ErrMalformedResponse)
	}

	groups := *list.Groups
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		if namespaces.Contains(g.Domain) {
			names = append(names, g.Name)
		}
	}

	e.logger.Debug("groups listed", "listed", len(groups), "matched", len(names))
	return names, len(groups), nil
}

// ExportGroup requests the export of one group in mode and returns the
// artifact. A non-200 answer returns a *domain.ExportError wrapping
// domain.ErrExportRejected; any other error is a transport failure.
func (e *Exporter) ExportGroup(ctx context.Context, name string, mode domain.PolicyMode) ([]byte, error) {
	resp, err := e.api.Post(ctx, pathExportGroup, domain.ExportRequest{
		Groups:     []string{name},
		PolicyMode: mode,
	})
	if err != nil {
		return nil, &domain.ExportError{Group: name, Err: err}
	}
	if !resp.OK() {
		e.logger.Debug("export rejected",
			"group", name,
			"status", resp.StatusCode,
			"body", e.redactBody(resp.Body),
		)
		return nil, &domain.ExportError{Group: name, StatusCode: resp.StatusCode, Err: domain.ErrExportRejected}
	}
	return resp.Body, nil
}

// Run lists the groups of namespaces and exports each one in mode. The
// summary is valid even when an error is returned and counts the groups
// handled before the failure.
func (e *Exporter) Run(ctx context.Context, namespaces []string, mode domain.PolicyMode) (summary domain.Summary, err error) {
	ctx, span := e.tracer.Start(ctx, "exporter.run", trace.WithAttributes(
		attribute.String("policy.mode", string(mode)),
		attribute.Int("namespaces.count", len(namespaces)),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("groups.listed", summary.Listed),
			attribute.Int("groups.matched", summary.Matched),
			attribute.Int("groups.exported", summary.Exported),
			attribute.Int("groups.skipped", summary.Skipped()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.ObserveRun(summary, err == nil)
	}()

	groups, listed, err := e.listGroups(ctx, domain.NewNamespaceSet(namespaces))
	summary.Listed = listed
	if err != nil {
		return summary, err
	}
	summary.Matched = len(groups)

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, err := e.exportOne(ctx, group, mode)
		if err != nil {
			return summary, err
		}
		summary.Record(outcome)
	}

	e.logger.Info("export finished", "summary", summary)
	return summary, nil
}

func (e *Exporter) exportOne(ctx context.Context, group string, mode domain.PolicyMode) (outcome domain.ExportOutcome, err error) {
	ctx, span := e.tracer.Start(ctx, "exporter.group", trace.WithAttributes(
		attribute.String("group.name", group),
	))
	start := time.Now()
	var status int
	defer func() {
		duration := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("export.outcome", string(outcome)))
			telemetry.RecordGroupExport(ctx, telemetry.GroupExport{
				PolicyMode: mode,
				Outcome:    outcome,
				StatusCode: status,
				Duration:   duration,
			})
			e.metrics.ObserveExport(outcome, duration)
		}
		span.End()
	}()

	if err := ValidateGroupName(group); err != nil {
		e.logger.Warn("skipping group", "group", group, "error", err)
		return domain.OutcomeRejected, nil
	}

	body, err := e.ExportGroup(ctx, group, mode)
	if err != nil {
		var exportErr *domain.ExportError
		if errors.As(err, &exportErr) && errors.Is(err, domain.ErrExportRejected) {
			status = exportErr.StatusCode
			e.logger.Warn("export failed, skipping group", "group", group, "status", status)
			return domain.OutcomeFailed, nil
		}
		return "", err
	}
	status = http.StatusOK

	path := ArtifactPath(e.outputDir, group)
	if err := os.WriteFile(path, body, artifactPerm); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	e.logger.Info("group exported", "group", group, "path", path, "bytes", len(body))
	return domain.OutcomeExported, nil
}

func (e *Exporter) redactBody(body []byte) string {
	return logging.Truncate(e.redactor.Redact(string(body)), logBodyLimit)
}
