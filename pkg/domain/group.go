package domain

import "fmt"

// Group is a policy grouping as reported by the controller. Domain is the
// namespace the group belongs to; global groups carry an empty domain.
type Group struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// GroupList is the body of GET /v1/group. Groups is a pointer so that a
// response missing the key can be told apart from an empty list.
type GroupList struct {
	Groups *[]Group `json:"groups"`
}

// ExportRequest is the body of POST /v1/file/group.
type ExportRequest struct {
	Groups     []string   `json:"groups"`
	PolicyMode PolicyMode `json:"policy_mode"`
}

// PolicyMode is the enforcement posture written into an exported policy.
type PolicyMode string

const (
	PolicyModeDiscover PolicyMode = "Discover"
	PolicyModeMonitor  PolicyMode = "Monitor"
	PolicyModeProtect  PolicyMode = "Protect"
)

// DefaultPolicyMode is used when no mode is configured.
const DefaultPolicyMode = PolicyModeProtect

// Validate reports whether m is one of the modes the controller accepts.
func (m PolicyMode) Validate() error {
	switch m {
	case PolicyModeDiscover, PolicyModeMonitor, PolicyModeProtect:
		return nil
	default:
		return fmt.Errorf("invalid policy mode %q, supported modes: %s, %s, %s",
			string(m), PolicyModeDiscover, PolicyModeMonitor, PolicyModeProtect)
	}
}

// NamespaceSet is the allow-list of namespaces whose groups are exported.
type NamespaceSet map[string]struct{}

// NewNamespaceSet builds a set from an ordered namespace list. Duplicates
// collapse.
func NewNamespaceSet(namespaces []string) NamespaceSet {
	set := make(NamespaceSet, len(namespaces))
	for _, ns := range namespaces {
		set[ns] = struct{}{}
	}
	return set
}

// Contains reports whether ns is in the set. Matching is exact.
func (s NamespaceSet) Contains(ns string) bool {
	_, ok := s[ns]
	return ok
}
