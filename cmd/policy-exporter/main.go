// Package main is the entry point for the policy-exporter binary.
// It exports the NeuVector security policy of every group in an allow-listed
// set of namespaces into one YAML file per group.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/polisai/policy-exporter/internal/tls"
	"github.com/polisai/policy-exporter/pkg/config"
	"github.com/polisai/policy-exporter/pkg/domain"
	"github.com/polisai/policy-exporter/pkg/exporter"
	"github.com/polisai/policy-exporter/pkg/logging"
	"github.com/polisai/policy-exporter/pkg/neuvector"
	"github.com/polisai/policy-exporter/pkg/telemetry"
)

// Process exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitNoNamespaces = 2
	exitIncomplete   = 3
)

// setupTelemetry is replaced in tests.
var setupTelemetry = telemetry.SetupProvider

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrNoNamespaces):
		return exitNoNamespaces
	case errors.Is(err, domain.ErrExportIncomplete):
		return exitIncomplete
	default:
		return exitFailure
	}
}

// newRootCmd creates the root command for policy-exporter
func newRootCmd(logOutput io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "policy-exporter",
		Short: "Export NeuVector group policies to YAML files",
		Long: `Exports the security policy of every NeuVector group that belongs to one of
the namespaces listed in namespaces.lst, writing <output-dir>/<group>.yaml.

The controller is reached directly (NEUVECTOR_API_HOST) or, with PROXY=1,
through the Rancher cluster proxy (RANCHER_HOST, RANCHER_CLUSTER_ID).
RANCHER_API_KEY is sent as the bearer token in both modes.

TLS certificate verification is OFF by default because the controller ships
with a self-signed certificate. Anyone able to intercept the connection can
then read the API keys; enable verification with --tls-verify or
TLS_VERIFY=1, and supply CA_BUNDLE for a private CA.

Exit codes: 0 done (even if some groups were skipped), 1 configuration or
runtime error, 2 no namespaces defined, 3 groups skipped in --strict mode.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, logOutput)
		},
	}

	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.StringP("namespaces", "n", "", "Namespace list file (default namespaces.lst)")
	flags.StringP("output-dir", "o", "", "Existing directory to write exports into (default ./)")
	flags.StringP("mode", "m", "", "Policy mode written into exports: Discover, Monitor or Protect (default Protect)")
	flags.Bool("tls-verify", false, "Verify the controller certificate")
	flags.Bool("strict", false, "Exit with code 3 when any group could not be exported")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "Human-readable logs instead of JSON")

	return rootCmd
}

// flagOptions turns explicitly set flags into config overrides.
func flagOptions(cmd *cobra.Command) ([]config.Option, error) {
	flags := cmd.Flags()
	var opts []config.Option

	stringFlags := []struct {
		name  string
		apply func(*config.Config, string)
	}{
		{"namespaces", func(c *config.Config, v string) { c.Export.NamespacesFile = v }},
		{"output-dir", func(c *config.Config, v string) { c.Export.OutputDir = v }},
		{"mode", func(c *config.Config, v string) { c.Export.PolicyMode = domain.PolicyMode(v) }},
		{"log-level", func(c *config.Config, v string) { c.Logging.Level = v }},
	}
	for _, f := range stringFlags {
		if !flags.Changed(f.name) {
			continue
		}
		val, err := flags.GetString(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", f.name, err)
		}
		apply := f.apply
		opts = append(opts, func(c *config.Config) { apply(c, val) })
	}

	boolFlags := []struct {
		name  string
		apply func(*config.Config, bool)
	}{
		{"tls-verify", func(c *config.Config, v bool) { c.TLS.Verify = v }},
		{"strict", func(c *config.Config, v bool) { c.Export.Strict = v }},
		{"pretty", func(c *config.Config, v bool) { c.Logging.Pretty = v }},
	}
	for _, f := range boolFlags {
		if !flags.Changed(f.name) {
			continue
		}
		val, err := flags.GetBool(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", f.name, err)
		}
		apply := f.apply
		opts = append(opts, func(c *config.Config) { apply(c, val) })
	}

	return opts, nil
}

// runExport is the main entry point for the root command
func runExport(cmd *cobra.Command, logOutput io.Writer) error {
	opts, err := flagOptions(cmd)
	if err != nil {
		return err
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Resolve(configPath, opts...)
	if err != nil {
		return err
	}

	// An empty allow-list ends the run before anything else is checked.
	namespaces, err := config.ReadNamespaces(cfg.Export.NamespacesFile)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}

	runID := uuid.NewString()
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: logOutput,
	}).With("run_id", runID)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tlsConfig, err := tls.BuildClient(tls.Config{Verify: cfg.TLS.Verify, ClientCAFile: cfg.TLS.CAFile}, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}

	client, err := neuvector.NewClient(neuvector.Options{
		Route:       cfg.Topology(),
		BearerToken: cfg.Gateway.APIKey,
		TLSConfig:   tlsConfig,
		Timeout:     cfg.Controller.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var metrics *exporter.Metrics
	if cfg.Export.MetricsTextfile != "" {
		metrics = exporter.NewMetrics()
	}

	exp, err := exporter.New(client, exporter.Options{
		OutputDir: cfg.Export.OutputDir,
		Logger:    logger,
		Metrics:   metrics,
		Redactor:  logging.NewRedactor(cfg.Secrets()),
	})
	if err != nil {
		return err
	}

	shutdown, err := setupTelemetry(ctx, telemetry.Config{
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		ResourceTags: map[string]string{"exporter.run_id": runID},
	})
	if err != nil {
		logger.Warn("Telemetry disabled, continuing without it", "endpoint", cfg.Telemetry.OTLPEndpoint, "error", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("Failed to flush telemetry", "error", err)
		}
	}()

	logger.Info("Starting export", "config", cfg, "namespaces", namespaces)

	summary, runErr := exp.Run(ctx, namespaces, cfg.Export.PolicyMode)

	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.Export.MetricsTextfile); err != nil {
			logger.Error("Failed to write metrics", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Export aborted", "error", runErr, "summary", summary)
		return runErr
	}

	if cfg.Export.Strict && !summary.Complete() {
		return fmt.Errorf("%w: %d of %d groups skipped", domain.ErrExportIncomplete, summary.Skipped(), summary.Matched)
	}
	return nil
}
