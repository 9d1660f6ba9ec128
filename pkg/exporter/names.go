package exporter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/polisai/policy-exporter/pkg/domain"
)

const artifactExt = ".yaml"

// ValidateGroupName rejects names that cannot be used verbatim as a single
// file name inside the output directory.
func ValidateGroupName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", domain.ErrUnsafeGroupName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", domain.ErrUnsafeGroupName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", domain.ErrUnsafeGroupName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", domain.ErrUnsafeGroupName, name)
	case !filepath.IsLocal(name + artifactExt):
		return fmt.Errorf("%w: %q is not a local file name", domain.ErrUnsafeGroupName, name)
	}
	return nil
}

// ArtifactPath returns where the export of group is written.
func ArtifactPath(dir, group string) string {
	return filepath.Join(dir, group+artifactExt)
}
