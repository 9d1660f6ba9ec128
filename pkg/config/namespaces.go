package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/polisai/policy-exporter/pkg/domain"
)

// ReadNamespaces loads the namespace allow-list, one namespace per line.
// Line endings are stripped and blank lines ignored. A missing file or one
// without any namespace yields domain.ErrNoNamespaces.
func ReadNamespaces(path string) ([]string, error) {
	//nolint:gosec // Namespace list path is controlled by the operator
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", domain.ErrNoNamespaces, path)
		}
		return nil, fmt.Errorf("failed to open namespace list %s: %w", path, err)
	}
	defer f.Close()

	namespaces, err := parseNamespaces(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace list %s: %w", path, err)
	}
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrNoNamespaces, path)
	}
	return namespaces, nil
}

func parseNamespaces(r io.Reader) ([]string, error) {
	var namespaces []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" {
			continue
		}
		namespaces = append(namespaces, line)
	}
	return namespaces, scanner.Err()
}
