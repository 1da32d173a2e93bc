package types

import (
	"sort"
	"time"
)

// RuleSetSnapshot is an immutable, atomically-published view of every
// loaded dataset's active rules. A new snapshot replaces the old one as a
// single pointer swap; readers in flight keep using the snapshot they
// already grabbed.
type RuleSetSnapshot struct {
	Version     string
	Datasets    []DatasetMetadata
	Rules       []*Rule
	RuleCount   int
	PublishedAt time.Time
}

// ActiveRules returns the rules in this snapshot eligible for evaluation,
// sorted by severity (critical first).
func (s *RuleSetSnapshot) ActiveRules() []*Rule {
	out := make([]*Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Enabled && r.State.Evaluable() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}
