// Package domain defines the types shared by the policy exporter.
//
// It has no dependencies outside the Go standard library. The controller
// client, the exporter and the command all exchange these values, so the
// dependency direction is always:
//
//	neuvector, exporter, cmd → domain
//
// Nothing in this package performs I/O.
package domain
