// Package dataset loads and authenticates YAML rule bundles, grounded on
// titus's pkg/rule/loader.go (fs.WalkDir + yaml.Unmarshal) and the original
// dataset_loader.py's metadata tolerance and HMAC canonicalization rules.
package dataset

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l0scanner/l0scanner/pkg/errs"
	"github.com/l0scanner/l0scanner/pkg/regexeval"
	"github.com/l0scanner/l0scanner/pkg/types"
)

// Loader reads and authenticates dataset YAML files from an fs.FS.
type Loader struct {
	fsys       fs.FS
	hmacSecret []byte
	failOpen   bool
	logger     *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// New creates a Loader rooted at fsys, authenticating datasets with
// hmacSecret. When failOpen is false, an unsigned or mis-signed dataset is
// rejected outright; when true, it is accepted with a warning (see
// DESIGN.md's resolution of the unsigned-dataset-under-fail-closed
// question).
func New(fsys fs.FS, hmacSecret []byte, failOpen bool, opts ...Option) *Loader {
	ld := &Loader{
		fsys:       fsys,
		hmacSecret: hmacSecret,
		failOpen:   failOpen,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(ld)
	}
	return ld
}

// LoadFile loads a single dataset YAML file by path within the loader's fs.
func (l *Loader) LoadFile(path string) (*types.Dataset, error) {
	raw, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	return l.parse(raw, path)
}

// LoadDir loads every *.yaml/*.yml file directly under dir, skipping (in
// fail-open mode) or aborting on (in fail-closed mode) any file that fails
// to load or authenticate.
func (l *Loader) LoadDir(dir string) ([]*types.Dataset, error) {
	var datasets []*types.Dataset
	entries, err := fs.ReadDir(l.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		ds, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			l.logger.Error("failed to load dataset", "file", name, "error", err)
			if !l.failOpen {
				return nil, errs.New("dataset.LoadDir", errs.KindDatasetIntegrity, err)
			}
			continue
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (l *Loader) parse(raw []byte, sourceName string) (*types.Dataset, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errs.New("dataset.parse", errs.KindDatasetIntegrity, fmt.Errorf("invalid yaml in %s: %w", sourceName, err))
	}
	if _, ok := doc["metadata"]; !ok {
		return nil, errs.New("dataset.parse", errs.KindDatasetIntegrity, fmt.Errorf("%s missing metadata section", sourceName))
	}
	if _, ok := doc["rules"]; !ok {
		return nil, errs.New("dataset.parse", errs.KindDatasetIntegrity, fmt.Errorf("%s missing rules section", sourceName))
	}

	var ds types.Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, errs.New("dataset.parse", errs.KindDatasetIntegrity, fmt.Errorf("decoding %s: %w", sourceName, err))
	}

	rawRules, _ := doc["rules"].([]any)
	applyRuleDefaults(ds.Rules, rawRules)

	if err := l.verifyHMAC(raw, &ds.Metadata); err != nil {
		return nil, err
	}

	if ds.Metadata.TotalRules == 0 {
		ds.Metadata.TotalRules = len(ds.Rules)
	} else if ds.Metadata.TotalRules != len(ds.Rules) {
		l.logger.Warn("rule count mismatch, auto-correcting",
			"dataset", ds.Metadata.Name, "declared", ds.Metadata.TotalRules, "actual", len(ds.Rules))
		ds.Metadata.TotalRules = len(ds.Rules)
	}

	l.validateRules(&ds)

	l.logger.Info("loaded dataset", "name", ds.Metadata.Name, "version", ds.Metadata.Version, "rules", len(ds.Rules))
	return &ds, nil
}

// applyRuleDefaults fills in the shorter-schema defaults spec.md §4.4 step 4
// requires (state, enabled, impact_score, tags, name, empty test lists),
// mirroring dataset_loader.py's _parse_rules rule_dict.setdefault calls.
// rawRules is the same rules list decoded generically as []any so presence
// of a key can be distinguished from its Go zero value.
func applyRuleDefaults(rules []types.Rule, rawRules []any) {
	for i := range rules {
		r := &rules[i]
		var raw map[string]any
		if i < len(rawRules) {
			raw, _ = rawRules[i].(map[string]any)
		}
		_, hasState := raw["state"]
		if !hasState {
			r.State = types.RuleStateActive
		}
		_, hasEnabled := raw["enabled"]
		if !hasEnabled {
			r.Enabled = true
		}
		if _, ok := raw["impact_score"]; !ok {
			if r.Severity == types.SeverityCritical {
				r.ImpactScore = 1.0
			} else {
				r.ImpactScore = 0.8
			}
		}
		if _, ok := raw["tags"]; !ok {
			category, _ := raw["category"].(string)
			if category != "" {
				r.Tags = []string{category}
			} else {
				r.Tags = []string{}
			}
		}
		if _, ok := raw["positive_tests"]; !ok {
			r.PositiveTests = []string{}
		}
		if _, ok := raw["negative_tests"]; !ok {
			r.NegativeTests = []string{}
		}
		if _, ok := raw["name"]; !ok {
			r.Name = fmt.Sprintf("Rule %s", r.ID)
		}
	}
}

func (l *Loader) verifyHMAC(raw []byte, meta *types.DatasetMetadata) error {
	if meta.HMACSignature == "" {
		if l.failOpen {
			l.logger.Warn("dataset has no HMAC signature (fail-open)", "dataset", meta.Name)
			return nil
		}
		return errs.New("dataset.verifyHMAC", errs.KindDatasetIntegrity,
			fmt.Errorf("dataset %q has no HMAC signature", meta.Name))
	}

	canonical, err := canonicalYAML(raw)
	if err != nil {
		return errs.New("dataset.verifyHMAC", errs.KindDatasetIntegrity, fmt.Errorf("canonicalizing %q: %w", meta.Name, err))
	}

	mac := hmac.New(sha256.New, l.hmacSecret)
	mac.Write([]byte(canonical))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(meta.HMACSignature)) {
		if l.failOpen {
			l.logger.Warn("HMAC verification failed (fail-open)", "dataset", meta.Name)
			return nil
		}
		return errs.New("dataset.verifyHMAC", errs.KindDatasetIntegrity,
			fmt.Errorf("HMAC verification failed for dataset %q", meta.Name))
	}
	return nil
}

// validateRules compiles each rule's pattern and runs its self-test
// samples, disabling (never rejecting) rules that fail to compile — the
// original loader's lenient, logging-only posture.
func (l *Loader) validateRules(ds *types.Dataset) {
	ev := regexeval.New(0)
	var disabled int
	for i := range ds.Rules {
		r := &ds.Rules[i]
		if err := ev.Compile(r.Pattern); err != nil {
			l.logger.Warn("rule has invalid pattern, disabling", "rule", r.ID, "error", err)
			r.Enabled = false
			disabled++
			continue
		}
		r.StructuralID = r.ComputeStructuralID()

		for _, sample := range r.PositiveTests {
			matches, err := ev.FindAll(r.Pattern, sample)
			if err != nil {
				l.logger.Error("rule positive test errored", "rule", r.ID, "error", err)
				continue
			}
			if len(matches) == 0 {
				l.logger.Warn("rule positive test failed", "rule", r.ID, "sample", truncate(sample, 50))
			}
		}
		for _, sample := range r.NegativeTests {
			matches, err := ev.FindAll(r.Pattern, sample)
			if err != nil {
				l.logger.Error("rule negative test errored", "rule", r.ID, "error", err)
				continue
			}
			if len(matches) > 0 {
				l.logger.Warn("rule negative test failed (false positive)", "rule", r.ID, "sample", truncate(sample, 50))
			}
		}
	}
	if disabled > 0 {
		l.logger.Warn("disabled rules with invalid patterns", "count", disabled)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
