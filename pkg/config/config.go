// Package config provides configuration structures and loading logic for the
// policy exporter.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polisai/policy-exporter/pkg/domain"
)

const (
	defaultOutputDir      = "./"
	defaultNamespacesFile = "namespaces.lst"
	defaultLogLevel       = "info"
)

// Config holds everything the exporter needs for one run. It is resolved
// once at startup and treated as read-only afterwards.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Export     ExportConfig     `yaml:"export"`
	TLS        TLSConfig        `yaml:"tls"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig describes the NeuVector controller REST API.
type ControllerConfig struct {
	// Host is used in direct mode only.
	Host string `yaml:"host"`
	// APIKey is the controller-native key, forwarded in gateway mode only.
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// GatewayConfig describes the Rancher management plane.
type GatewayConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	ClusterID string `yaml:"cluster_id"`
	// APIKey is sent as the bearer token on every request, in both modes.
	APIKey string `yaml:"api_key"`
}

// ExportConfig controls what is exported and where it goes.
type ExportConfig struct {
	OutputDir       string            `yaml:"output_dir"`
	PolicyMode      domain.PolicyMode `yaml:"policy_mode"`
	NamespacesFile  string            `yaml:"namespaces_file"`
	Strict          bool              `yaml:"strict"`
	MetricsTextfile string            `yaml:"metrics_textfile"`
}

// TLSConfig controls verification of the controller (or gateway) certificate.
// Verification is off unless enabled: the controller ships with a
// self-signed certificate, and turning it off exposes the API keys to
// anyone able to intercept the connection.
type TLSConfig struct {
	Verify bool   `yaml:"verify"`
	CAFile string `yaml:"ca_file"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Option mutates a loaded configuration before validation. Command-line
// flags are applied this way so they win over both file and environment.
type Option func(*Config)

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			OutputDir:      defaultOutputDir,
			PolicyMode:     domain.DefaultPolicyMode,
			NamespacesFile: defaultNamespacesFile,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load resolves the configuration and validates it.
func Load(path string, opts ...Option) (*Config, error) {
	cfg, err := Resolve(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Resolve reads configuration from an optional YAML file, applies
// environment variable overrides and the supplied options, without
// validating. Environment references in the file (${VAR}) are expanded
// before parsing.
func Resolve(path string, opts ...Option) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(cfg)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// applyDefaults restores defaults for fields a file or option blanked out.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Export.OutputDir) == "" {
		c.Export.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.Export.NamespacesFile) == "" {
		c.Export.NamespacesFile = defaultNamespacesFile
	}
	if c.Export.PolicyMode == "" {
		c.Export.PolicyMode = domain.DefaultPolicyMode
	}
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("NEUVECTOR_API_KEY"); val != "" {
		cfg.Controller.APIKey = val
	}
	if val := os.Getenv("NEUVECTOR_API_HOST"); val != "" {
		cfg.Controller.Host = val
	}
	if val := os.Getenv("HTTP_TIMEOUT"); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: HTTP_TIMEOUT: %w", domain.ErrConfigInvalid, err)
		}
		cfg.Controller.Timeout = timeout
	}

	if val := os.Getenv("PROXY"); val != "" {
		cfg.Gateway.Enabled = val == "1"
	}
	if val := os.Getenv("RANCHER_API_KEY"); val != "" {
		cfg.Gateway.APIKey = val
	}
	if val := os.Getenv("RANCHER_HOST"); val != "" {
		cfg.Gateway.Host = val
	}
	if val := os.Getenv("RANCHER_CLUSTER_ID"); val != "" {
		cfg.Gateway.ClusterID = val
	}

	if val := os.Getenv("OUTPUT_DIR"); val != "" {
		cfg.Export.OutputDir = val
	}
	if val := os.Getenv("MODE"); val != "" {
		cfg.Export.PolicyMode = domain.PolicyMode(val)
	}
	if val := os.Getenv("NAMESPACES_FILE"); val != "" {
		cfg.Export.NamespacesFile = val
	}
	if val := os.Getenv("STRICT"); val != "" {
		cfg.Export.Strict = isTrue(val)
	}
	if val := os.Getenv("METRICS_TEXTFILE"); val != "" {
		cfg.Export.MetricsTextfile = val
	}

	if val := os.Getenv("TLS_VERIFY"); val != "" {
		cfg.TLS.Verify = isTrue(val)
	}
	if val := os.Getenv("CA_BUNDLE"); val != "" {
		cfg.TLS.CAFile = val
	}

	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); val != "" {
		cfg.Telemetry.Insecure = isTrue(val)
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}

	return nil
}

func isTrue(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate performs validation of the entire configuration. Every problem
// is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Gateway.APIKey) == "" {
		errs = append(errs, errors.New("RANCHER_API_KEY is required"))
	}

	if c.Gateway.Enabled {
		if err := validateHost("RANCHER_HOST", c.Gateway.Host); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(c.Gateway.ClusterID) == "" {
			errs = append(errs, errors.New("RANCHER_CLUSTER_ID is required in gateway mode"))
		} else if strings.ContainsAny(c.Gateway.ClusterID, "/?#") {
			errs = append(errs, fmt.Errorf("RANCHER_CLUSTER_ID %q must be a single path segment", c.Gateway.ClusterID))
		}
		if strings.TrimSpace(c.Controller.APIKey) == "" {
			errs = append(errs, errors.New("NEUVECTOR_API_KEY is required in gateway mode"))
		}
	} else if err := validateHost("NEUVECTOR_API_HOST", c.Controller.Host); err != nil {
		errs = append(errs, err)
	}

	if c.Controller.Timeout < 0 {
		errs = append(errs, fmt.Errorf("controller timeout must not be negative, got %s", c.Controller.Timeout))
	}

	c.applyDefaults()
	if err := c.Export.PolicyMode.Validate(); err != nil {
		errs = append(errs, err)
	}

	if !c.TLS.Verify && c.TLS.CAFile != "" {
		errs = append(errs, errors.New("CA_BUNDLE is set but TLS verification is disabled"))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateHost(name, host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("%s is required", name)
	}
	if strings.Contains(host, "://") || strings.ContainsAny(host, "/?#@") {
		return fmt.Errorf("%s %q must be a bare host[:port]", name, host)
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = defaultLogLevel
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	case "warning":
		c.Level = "warn"
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, warning, error", c.Level)
	}
}

// Topology returns the routing variant selected by the configuration.
func (c *Config) Topology() Topology {
	if c.Gateway.Enabled {
		return Gateway{
			Host:             c.Gateway.Host,
			ClusterID:        c.Gateway.ClusterID,
			ControllerAPIKey: c.Controller.APIKey,
		}
	}
	return Direct{Host: c.Controller.Host}
}

// Secrets returns the credentials held by the configuration, for log
// redaction.
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{c.Gateway.APIKey, c.Controller.APIKey} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// LogValue implements slog.LogValuer. API keys are never rendered.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("topology", c.Topology().Name()),
		slog.String("base_url", c.Topology().BaseURL()),
		slog.String("output_dir", c.Export.OutputDir),
		slog.String("policy_mode", string(c.Export.PolicyMode)),
		slog.String("namespaces_file", c.Export.NamespacesFile),
		slog.Bool("strict", c.Export.Strict),
		slog.Bool("tls_verify", c.TLS.Verify),
		slog.Bool("controller_api_key_set", c.Controller.APIKey != ""),
		slog.Bool("gateway_api_key_set", c.Gateway.APIKey != ""),
	)
}
