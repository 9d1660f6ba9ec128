package domain

import "log/slog"

// Summary counts what happened to the groups of one run.
//
//   - Listed: groups returned by the controller
//   - Matched: groups whose domain is in the allow-list
//   - Exported: artifacts written to disk
//   - Failed: exports answered with a non-200 status
//   - Rejected: names refused as unsafe file names
type Summary struct {
	Listed   int
	Matched  int
	Exported int
	Failed   int
	Rejected int
}

// Skipped returns the number of matched groups that produced no file.
func (s Summary) Skipped() int {
	return s.Failed + s.Rejected
}

// Complete reports whether every matched group was written.
func (s Summary) Complete() bool {
	return s.Skipped() == 0
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("listed", s.Listed),
		slog.Int("matched", s.Matched),
		slog.Int("exported", s.Exported),
		slog.Int("failed", s.Failed),
		slog.Int("rejected", s.Rejected),
	)
}

// ExportOutcome is what happened to a single matched group.
type ExportOutcome string

const (
	OutcomeExported ExportOutcome = "exported"
	OutcomeFailed   ExportOutcome = "failed"
	OutcomeRejected ExportOutcome = "rejected"
)

// Record counts one outcome.
func (s *Summary) Record(outcome ExportOutcome) {
	switch outcome {
	case OutcomeExported:
		s.Exported++
	case OutcomeFailed:
		s.Failed++
	case OutcomeRejected:
		s.Rejected++
	}
}
