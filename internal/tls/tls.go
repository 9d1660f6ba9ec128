package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Config contains the client TLS settings.
type Config struct {
	// Verify enables certificate verification. When false the client
	// accepts any certificate, which exposes credentials to interception.
	Verify       bool
	ClientCAFile string
	ServerName   string
}

var insecureWarning sync.Once

// BuildClient constructs a TLS configuration for upstream clients. The first
// call that disables verification logs a single warning for the process.
func BuildClient(cfg Config, logger *slog.Logger) (*tls.Config, error) {
	clientConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerName,
	}

	if !cfg.Verify {
		if cfg.ClientCAFile != "" {
			return nil, fmt.Errorf("a CA bundle requires certificate verification")
		}
		//nolint:gosec // Verification is an explicit operator choice
		clientConfig.InsecureSkipVerify = true
		warnInsecure(logger)
		return clientConfig, nil
	}

	if cfg.ClientCAFile != "" {
		caPool, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		clientConfig.RootCAs = caPool
	}

	return clientConfig, nil
}

func warnInsecure(logger *slog.Logger) {
	insecureWarning.Do(func() {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("TLS certificate verification is disabled; set TLS_VERIFY=1 to enable it")
	})
}

func loadCertPool(path string) (*x509.CertPool, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("ca bundle path must be absolute: %q", path)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", cleanPath)
	}
	return pool, nil
}
