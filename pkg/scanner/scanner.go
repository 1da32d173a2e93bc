// Package scanner orchestrates the full Layer-0 pipeline: prefilter,
// normalization, code detection, rule evaluation, and verdict assembly.
// Grounded on original_source/layer0/scanner.py's Scanner class, with
// Python's ThreadPoolExecutor-based concurrency replaced by a bounded
// golang.org/x/sync/errgroup worker pool the way titus bounds concurrent
// work across its own pipelines.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l0scanner/l0scanner/pkg/audit"
	"github.com/l0scanner/l0scanner/pkg/codedetect"
	"github.com/l0scanner/l0scanner/pkg/errs"
	"github.com/l0scanner/l0scanner/pkg/normalize"
	"github.com/l0scanner/l0scanner/pkg/prefilter"
	"github.com/l0scanner/l0scanner/pkg/registry"
	"github.com/l0scanner/l0scanner/pkg/regexeval"
	"github.com/l0scanner/l0scanner/pkg/types"
)

// Config holds the behavioral knobs a Scanner reads on every scan. It is
// immutable after New; hot-reloadable state (the rule set, the
// derived prefilter) lives in the Registry and in the Scanner's own
// atomically-swapped prefilter instead.
type Config struct {
	StopOnFirstMatch        bool
	EnsembleScoring         bool
	EnsembleThresholdReject float64
	EnsembleThresholdWarn   float64

	PrefilterEnabled  bool
	PrefilterKeywords []string

	FailOpen           bool
	MaxChunkWorkers    int
	ScannerVersion     string
	AllowlistedHashes  map[types.InputHash]bool
	MLSuspicionEnabled bool

	// MaxInputLength caps len(UserInput) in bytes; zero disables the check.
	MaxInputLength int
	// MaxChunks caps len(ExternalChunks); zero disables the check.
	MaxChunks int
	// ChunkProcessingTimeout bounds the whole Scan call end-to-end; zero
	// disables the deadline and Scan runs under the caller's context alone.
	ChunkProcessingTimeout time.Duration
}

// Scanner is the top-level entry point: Scan takes a PreparedInput and
// returns a ScanResult, never an error for ordinary scan failures (those
// become ScanStatus.Error or ReviewRequired per the fail-open/fail-closed
// policy). Scan returns an error, with a nil result, for an invalid
// PreparedInput, and an errs.KindScanTimeout error, alongside a populated
// result, when the ChunkProcessingTimeout deadline is exceeded.
type Scanner struct {
	cfg       Config
	registry  *registry.Registry
	normalize *normalize.Normalizer
	detect    *codedetect.Detector
	eval      *regexeval.Evaluator
	tokenizer *audit.Tokenizer

	pf *prefilter.Prefilter
}

// New constructs a Scanner with an empty prefilter; call SyncRules after
// the first dataset load to build it from the registry's active rules.
func New(cfg Config, reg *registry.Registry, norm *normalize.Normalizer, detect *codedetect.Detector, eval *regexeval.Evaluator, tokenizer *audit.Tokenizer) *Scanner {
	return &Scanner{
		cfg:       cfg,
		registry:  reg,
		normalize: norm,
		detect:    detect,
		eval:      eval,
		tokenizer: tokenizer,
		pf:        prefilter.Build(nil),
	}
}

// SyncRules rebuilds the Scanner's keyword prefilter from the registry's
// currently active rules. Call after every Registry.Load.
func (s *Scanner) SyncRules() {
	s.pf = prefilter.Build(s.registry.Current().ActiveRules())
}

// ValidateInput enforces PreparedInput's structural invariants plus the
// size-based bounds (max_input_length, max_chunks) that depend on runtime
// config, returning an *errs.Error tagged errs.KindInputInvalid on failure.
// Callers that need to reject malformed input before it reaches the
// circuit breaker (internal/service's /scan handler) should call this
// directly instead of relying on Scan's internal check.
func (s *Scanner) ValidateInput(in *types.PreparedInput) error {
	if err := in.Validate(); err != nil {
		return errs.New("scanner.ValidateInput", errs.KindInputInvalid, err)
	}
	if s.cfg.MaxInputLength > 0 && len(in.UserInput) > s.cfg.MaxInputLength {
		return errs.New("scanner.ValidateInput", errs.KindInputInvalid,
			fmt.Errorf("user_input exceeds max_input_length (%d > %d)", len(in.UserInput), s.cfg.MaxInputLength))
	}
	if s.cfg.MaxChunks > 0 && len(in.ExternalChunks) > s.cfg.MaxChunks {
		return errs.New("scanner.ValidateInput", errs.KindInputInvalid,
			fmt.Errorf("external_chunks exceeds max_chunks (%d > %d)", len(in.ExternalChunks), s.cfg.MaxChunks))
	}
	return nil
}

// Scan runs the full pipeline against in.
func (s *Scanner) Scan(ctx context.Context, in types.PreparedInput) (*types.ScanResult, error) {
	if err := s.ValidateInput(&in); err != nil {
		return nil, err
	}

	start := time.Now()

	if s.cfg.ChunkProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ChunkProcessingTimeout)
		defer cancel()
	}

	if s.cfg.AllowlistedHashes != nil {
		hash := types.HashInput(in.CombinedText())
		if s.cfg.AllowlistedHashes[hash] {
			return s.result(types.StatusClean, nil, nil, time.Since(start), in.MLSuspicionScore, ""), nil
		}
	}

	result, err := s.run(ctx, in, start)
	if err != nil {
		elapsed := time.Since(start)
		if errors.Is(err, context.DeadlineExceeded) {
			note := "scan deadline exceeded"
			status := types.StatusReviewRequired
			if s.cfg.FailOpen {
				status = types.StatusError
			}
			r := s.result(status, nil, nil, elapsed, in.MLSuspicionScore, note)
			r.Error = err.Error()
			return r, errs.New("scanner.Scan", errs.KindScanTimeout, err)
		}
		if s.cfg.FailOpen {
			r := s.result(types.StatusError, nil, nil, elapsed, in.MLSuspicionScore, "scan error, failing open")
			r.Error = err.Error()
			return r, nil
		}
		r := s.result(types.StatusReviewRequired, nil, nil, elapsed, in.MLSuspicionScore, "scan error, failing closed")
		r.Error = err.Error()
		return r, nil
	}
	return result, nil
}

func (s *Scanner) run(ctx context.Context, in types.PreparedInput, start time.Time) (*types.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 0: hybrid keyword prefilter over the raw user input. A miss
	// here is an optimization short-circuit, never a security decision -
	// Filter always returns no-keyword rules, so it degrades safely.
	candidates := s.pf.Filter(in.UserInput)

	normalizedUser := s.normalize.Normalize(in.UserInput)

	// Code detection runs before the prefilter-miss exit, so code input is
	// reported CLEAN_CODE even when it carries no rule keyword.
	if s.detect.Enabled {
		codeResult := s.detect.Detect(normalizedUser)
		if codeResult.IsCode {
			r := s.result(types.StatusCleanCode, nil, nil, time.Since(start), in.MLSuspicionScore, codeResult.Reason)
			r.IsCode = true
			r.CodeConfidence = codeResult.Confidence
			return r, nil
		}
	}

	if len(candidates) == 0 {
		return s.result(types.StatusClean, nil, nil, time.Since(start), in.MLSuspicionScore, "prefilter_miss"), nil
	}

	// Stage 3: legacy substring keyword gate, independent of the rule
	// keyword prefilter above - a coarser, config-driven allow-through.
	if s.cfg.PrefilterEnabled && !legacyPrefilterHit(normalizedUser, s.cfg.PrefilterKeywords) {
		return s.result(types.StatusClean, nil, nil, time.Since(start), in.MLSuspicionScore, "legacy_prefilter_miss"), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalizedChunks, err := s.normalizeChunks(ctx, in.ExternalChunks)
	if err != nil {
		return nil, err
	}

	rules := s.registry.Current().ActiveRules()

	userMatch := s.scanText(normalizedUser, "user_input", rules)
	if userMatch != nil && s.stopEarly() {
		return s.resultFromMatch(*userMatch, time.Since(start), in.MLSuspicionScore), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunkMatches := s.scanChunks(ctx, normalizedChunks, rules)
	if len(chunkMatches) > 0 && s.stopEarly() {
		return s.resultFromMatch(chunkMatches[0], time.Since(start), in.MLSuspicionScore), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	combined := normalizedUser
	for _, c := range normalizedChunks {
		combined += " " + c
	}
	combinedMatch := s.scanText(combined, "combined", rules)
	if combinedMatch != nil && s.stopEarly() {
		return s.resultFromMatch(*combinedMatch, time.Since(start), in.MLSuspicionScore), nil
	}

	if s.cfg.EnsembleScoring {
		var all []types.RuleMatch
		if userMatch != nil {
			all = append(all, *userMatch)
		}
		all = append(all, chunkMatches...)
		if combinedMatch != nil {
			all = append(all, *combinedMatch)
		}
		if len(all) > 0 {
			return s.ensembleDecision(all, time.Since(start), in.MLSuspicionScore), nil
		}
	}

	return s.result(types.StatusClean, nil, nil, time.Since(start), in.MLSuspicionScore, ""), nil
}

func legacyPrefilterHit(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// scanText evaluates rules against text in severity order, returning the
// first match - mirroring scanner.py's _scan_text, which also stops at
// the first hit rather than collecting every matching rule.
func (s *Scanner) scanText(text, source string, rules []*types.Rule) *types.RuleMatch {
	for _, rule := range rules {
		evalStart := time.Now()
		matches, err := s.eval.FindAll(rule.Pattern, text)
		if err != nil {
			continue // timeout or compile error: skip this rule, keep scanning
		}
		if len(matches) == 0 {
			continue
		}
		m := matches[0]
		s.registry.RecordMatch(rule.ID, float64(time.Since(evalStart).Microseconds())/1000.0)
		matchedText := ""
		if m.End <= len(text) {
			matchedText = text[m.Start:m.End]
		}
		return &types.RuleMatch{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Severity:       rule.Severity,
			Source:         source,
			Offset:         m.Start,
			Length:         m.End - m.Start,
			Confidence:     rule.ImpactScore,
			MatchedPreview: audit.Redact(matchedText),
			Engine:         m.Engine,
		}
	}
	return nil
}

// normalizeChunks normalizes external chunks concurrently, bounded by
// MaxChunkWorkers, preserving input order in the returned slice regardless
// of completion order.
func (s *Scanner) normalizeChunks(ctx context.Context, chunks []string) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	out := make([]string, len(chunks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.workerLimit())
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = s.normalize.Normalize(chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanChunks scans every chunk concurrently, bounded by MaxChunkWorkers,
// and returns matches in chunk order - unlike scanner.py's asyncio.gather,
// which returns in completion order, we preserve index order since callers
// should not have to guess which chunk a match came from by racing.
func (s *Scanner) scanChunks(ctx context.Context, chunks []string, rules []*types.Rule) []types.RuleMatch {
	if len(chunks) == 0 {
		return nil
	}
	results := make([]*types.RuleMatch, len(chunks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.workerLimit())
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}
			results[i] = s.scanText(chunk, fmt.Sprintf("chunk_%d", i), rules)
			return nil
		})
	}
	_ = g.Wait()

	var matches []types.RuleMatch
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
			if s.stopEarly() {
				break
			}
		}
	}
	return matches
}

// stopEarly reports whether the pipeline returns at the first stage that
// matches; ensemble scoring overrides StopOnFirstMatch.
func (s *Scanner) stopEarly() bool {
	return s.cfg.StopOnFirstMatch && !s.cfg.EnsembleScoring
}

func (s *Scanner) workerLimit() int {
	if s.cfg.MaxChunkWorkers > 0 {
		return s.cfg.MaxChunkWorkers
	}
	return 4
}

func (s *Scanner) ensembleDecision(matches []types.RuleMatch, elapsed time.Duration, mlScore *float64) *types.ScanResult {
	var sum float64
	for _, m := range matches {
		sum += m.Confidence
	}
	score := sum / float64(len(matches))

	status := types.StatusClean
	switch {
	case score >= s.cfg.EnsembleThresholdReject:
		status = types.StatusRejected
	case score >= s.cfg.EnsembleThresholdWarn:
		status = types.StatusWarn
	}

	note := fmt.Sprintf("ensemble_score=%.2f over %d matches", score, len(matches))
	return s.result(status, matches, &score, elapsed, mlScore, note)
}

func (s *Scanner) resultFromMatch(match types.RuleMatch, elapsed time.Duration, mlScore *float64) *types.ScanResult {
	status := types.StatusWarn
	if match.Severity == types.SeverityCritical || match.Severity == types.SeverityHigh {
		status = types.StatusRejected
	}
	note := fmt.Sprintf("matched rule %s (%s)", match.RuleID, match.Severity)
	return s.result(status, []types.RuleMatch{match}, nil, elapsed, mlScore, note)
}

func (s *Scanner) result(status types.ScanStatus, matches []types.RuleMatch, ensembleScore *float64, elapsed time.Duration, mlScore *float64, note string) *types.ScanResult {
	if !s.cfg.MLSuspicionEnabled {
		mlScore = nil
	}
	now := time.Now()
	snap := s.registry.Current()
	return &types.ScanResult{
		Status:           status,
		Matches:          matches,
		RuleSetVersion:   snap.Version,
		ScannerVersion:   s.cfg.ScannerVersion,
		Note:             note,
		AuditToken:       s.tokenizer.Generate(snap.Version, now.Unix()),
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		EnsembleScore:    ensembleScore,
		MLSuspicionScore: mlScore,
		Timestamp:        now,
	}
}

