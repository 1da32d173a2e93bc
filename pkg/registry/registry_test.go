package registry

import (
	"testing"

	"github.com/l0scanner/l0scanner/pkg/types"
)

func sampleDataset(name, version string, ruleIDs ...string) *types.Dataset {
	ds := &types.Dataset{
		Metadata: types.DatasetMetadata{Name: name, Version: version},
	}
	for _, id := range ruleIDs {
		ds.Rules = append(ds.Rules, types.Rule{
			ID: id, Pattern: "x", Enabled: true, State: types.RuleStateActive,
			Severity: types.SeverityHigh,
		})
	}
	return ds
}

func TestLoadPublishesSnapshot(t *testing.T) {
	r := New()
	snap := r.Load([]*types.Dataset{sampleDataset("core", "1.0", "r1", "r2")})
	if snap.RuleCount != 2 {
		t.Fatalf("expected 2 rules, got %d", snap.RuleCount)
	}
	if r.Current().Version != snap.Version {
		t.Fatal("current snapshot should match last loaded")
	}
}

func TestLoadExcludesDisabledAndNonEvaluable(t *testing.T) {
	ds := sampleDataset("core", "1.0")
	ds.Rules = []types.Rule{
		{ID: "a", Enabled: true, State: types.RuleStateActive},
		{ID: "b", Enabled: false, State: types.RuleStateActive},
		{ID: "c", Enabled: true, State: types.RuleStateDraft},
	}
	r := New()
	snap := r.Load([]*types.Dataset{ds})
	if snap.RuleCount != 1 {
		t.Fatalf("expected 1 evaluable rule, got %d", snap.RuleCount)
	}
}

func TestVersionDeterministic(t *testing.T) {
	r1 := New()
	r2 := New()
	snap1 := r1.Load([]*types.Dataset{sampleDataset("core", "1.0", "r1")})
	snap2 := r2.Load([]*types.Dataset{sampleDataset("core", "1.0", "r1")})
	if snap1.Version != snap2.Version {
		t.Fatalf("expected same version for same dataset inputs: %s vs %s", snap1.Version, snap2.Version)
	}
	if snap1.Version[:8] != "ruleset-" {
		t.Fatalf("expected ruleset- prefix, got %s", snap1.Version)
	}
}

func TestRecordMatchTrimsHistory(t *testing.T) {
	r := New()
	for i := 0; i < 1500; i++ {
		r.RecordMatch("rule-1", 1.0)
	}
	stats := r.Stats()
	if stats.TotalMatches != 1500 {
		t.Fatalf("expected 1500 total matches, got %d", stats.TotalMatches)
	}
	if _, ok := stats.AvgExecutionTimesMs["rule-1"]; !ok {
		t.Fatal("expected avg execution time for rule-1")
	}
	if got := len(r.executionTimes["rule-1"]); got != maxExecutionSamples {
		t.Fatalf("expected execution-time history trimmed to %d samples, got %d", maxExecutionSamples, got)
	}
}

func TestStatsTopMatchedRulesCappedAtTen(t *testing.T) {
	r := New()
	for i := 0; i < 15; i++ {
		id := string(rune('a' + i))
		r.RecordMatch(id, 1.0)
	}
	stats := r.Stats()
	if len(stats.TopMatchedRules) != 10 {
		t.Fatalf("expected top 10 rules, got %d", len(stats.TopMatchedRules))
	}
}
