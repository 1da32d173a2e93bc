// Package registry holds the live, atomically-swapped rule-set snapshot
// the scanner evaluates against, plus per-rule match/latency analytics.
// Grounded on the original rule_registry.py's lock-guarded swap and
// versioning, realized with sync/atomic.Pointer the way titus's store
// package keeps a single writer behind a mutex for many concurrent readers.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l0scanner/l0scanner/pkg/types"
)

const maxExecutionSamples = 1000

// Registry publishes RuleSetSnapshots and tracks match/latency analytics.
type Registry struct {
	snapshot atomic.Pointer[types.RuleSetSnapshot]
	swapMu   sync.Mutex

	statsMu        sync.Mutex
	matchCounts    map[string]int
	executionTimes map[string][]float64
}

// New creates an empty Registry with a zero-value snapshot published.
func New() *Registry {
	r := &Registry{
		matchCounts:    make(map[string]int),
		executionTimes: make(map[string][]float64),
	}
	r.snapshot.Store(&types.RuleSetSnapshot{Version: "0.0.0", PublishedAt: time.Now()})
	return r
}

// Load publishes a new snapshot built from datasets, replacing the
// previous one atomically. Only rules in an evaluable state and enabled
// are carried into the snapshot.
func (r *Registry) Load(datasets []*types.Dataset) *types.RuleSetSnapshot {
	r.swapMu.Lock()
	defer r.swapMu.Unlock()

	metas := make([]types.DatasetMetadata, 0, len(datasets))
	var rules []*types.Rule
	for _, ds := range datasets {
		metas = append(metas, ds.Metadata)
		for i := range ds.Rules {
			rule := &ds.Rules[i]
			if rule.Enabled && rule.State.Evaluable() {
				rules = append(rules, rule)
			}
		}
	}

	snap := &types.RuleSetSnapshot{
		Version:     generateVersion(metas),
		Datasets:    metas,
		Rules:       rules,
		RuleCount:   len(rules),
		PublishedAt: time.Now(),
	}
	r.snapshot.Store(snap)
	return snap
}

// Current returns the currently published snapshot.
func (r *Registry) Current() *types.RuleSetSnapshot {
	return r.snapshot.Load()
}

func generateVersion(metas []types.DatasetMetadata) string {
	if len(metas) == 0 {
		return "0.0.0"
	}
	parts := make([]string, 0, len(metas))
	for _, m := range metas {
		parts = append(parts, m.Name+":"+m.Version)
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "ruleset-" + hex.EncodeToString(sum[:])[:8]
}

// RecordMatch records that rule ruleID matched, taking execMS milliseconds,
// trimming the per-rule execution-time history to the most recent 1000
// samples so memory stays bounded under sustained traffic.
func (r *Registry) RecordMatch(ruleID string, execMS float64) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.matchCounts[ruleID]++
	times := append(r.executionTimes[ruleID], execMS)
	if len(times) > maxExecutionSamples {
		times = times[len(times)-maxExecutionSamples:]
	}
	r.executionTimes[ruleID] = times
}

// TopMatch is one entry of the top-matched-rules leaderboard.
type TopMatch struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// Stats is a point-in-time snapshot of registry analytics for /stats.
type Stats struct {
	Version             string             `json:"version"`
	LoadTimestamp       time.Time          `json:"load_timestamp"`
	TotalDatasets       int                `json:"total_datasets"`
	TotalRules          int                `json:"total_rules"`
	TotalMatches        int                `json:"total_matches"`
	TopMatchedRules     []TopMatch         `json:"top_matched_rules"`
	AvgExecutionTimesMs map[string]float64 `json:"avg_execution_times_ms"`
	DuplicatePatterns   int                `json:"duplicate_pattern_count"`
}

// Stats computes the current analytics snapshot.
func (r *Registry) Stats() Stats {
	snap := r.Current()

	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	var total int
	for _, c := range r.matchCounts {
		total += c
	}

	avg := make(map[string]float64, len(r.executionTimes))
	for ruleID, times := range r.executionTimes {
		if len(times) == 0 {
			continue
		}
		var sum float64
		for _, t := range times {
			sum += t
		}
		avg[ruleID] = sum / float64(len(times))
	}

	top := make([]TopMatch, 0, len(r.matchCounts))
	for ruleID, count := range r.matchCounts {
		top = append(top, TopMatch{RuleID: ruleID, Count: count})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > 10 {
		top = top[:10]
	}

	return Stats{
		Version:             snap.Version,
		LoadTimestamp:       snap.PublishedAt,
		TotalDatasets:       len(snap.Datasets),
		TotalRules:          snap.RuleCount,
		TotalMatches:        total,
		TopMatchedRules:     top,
		AvgExecutionTimesMs: avg,
		DuplicatePatterns:   countDuplicatePatterns(snap.Rules),
	}
}

func countDuplicatePatterns(rules []*types.Rule) int {
	seen := make(map[string]int, len(rules))
	for _, r := range rules {
		seen[r.StructuralID]++
	}
	var duplicates int
	for _, count := range seen {
		if count > 1 {
			duplicates++
		}
	}
	return duplicates
}
