package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrNoNamespaces      = errors.New("no namespaces defined")
	ErrOutputDirMissing  = errors.New("output directory does not exist")
	ErrMalformedResponse = errors.New("malformed controller response")
	ErrUnsafeGroupName   = errors.New("unsafe group name")
	ErrExportRejected    = errors.New("export rejected by controller")
	ErrExportIncomplete  = errors.New("one or more groups were not exported")
)

// ExportError wraps a per-group failure with the group and the status code
// returned by the controller. StatusCode is zero when no response was read.
type ExportError struct {
	Group      string
	StatusCode int
	Err        error
}

func (e *ExportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("export group %q: %v (status %d)", e.Group, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("export group %q: %v", e.Group, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
