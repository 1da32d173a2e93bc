// Package regexeval selects among three regex engines the way
// pkg/matcher/regexp.go and the original regex_engine.py both do: prefer a
// guaranteed-linear-time engine, fall back to an extended-syntax engine
// when the pattern needs lookaround or backreferences, and only ever
// budget a wall-clock timeout against the fallback tiers.
package regexeval

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
)

// Engine names surfaced on RuleMatch.Engine.
const (
	EngineLinear      = "re2"
	EngineExtendedRE2 = "regexp2_re2"
	EngineBacktrack   = "regexp2_backtrack"
)

// TimeoutError reports that a non-linear engine exceeded its time budget.
type TimeoutError struct {
	Pattern string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("regex timeout after %s evaluating pattern %q", e.Elapsed, e.Pattern)
}

type compiled struct {
	engine string
	re2    *regexp.Regexp  // EngineLinear
	ext    *regexp2.Regexp // EngineExtendedRE2 / EngineBacktrack
}

// Evaluator compiles and caches patterns, and evaluates them against input
// while enforcing a timeout budget on every tier but the linear one.
type Evaluator struct {
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]*compiled

	timeouts atomic.Int64
}

// TimeoutCount reports how many pattern evaluations have hit the wall-clock
// timeout since the Evaluator was created, for /metrics exposition.
func (e *Evaluator) TimeoutCount() int64 {
	return e.timeouts.Load()
}

// New creates an Evaluator. timeout bounds regexp2-backed matches only;
// the stdlib RE2 tier runs unbounded because it can't backtrack.
func New(timeout time.Duration) *Evaluator {
	return &Evaluator{
		timeout: timeout,
		cache:   make(map[string]*compiled),
	}
}

// Reset drops every cached compiled pattern, called after a rule-set
// snapshot swap so stale patterns don't linger.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*compiled)
}

// Compile compiles pattern once and caches it, trying the linear RE2 tier
// first, then the extended regexp2-RE2 tier, then the full backtracker.
func (e *Evaluator) Compile(pattern string) error {
	_, err := e.get(pattern)
	return err
}

func (e *Evaluator) get(pattern string) (*compiled, error) {
	e.mu.RLock()
	c, ok := e.cache[pattern]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cache[pattern]; ok {
		return c, nil
	}

	c, err := e.compile(pattern)
	if err != nil {
		return nil, err
	}
	e.cache[pattern] = c
	return c, nil
}

func (e *Evaluator) compile(pattern string) (*compiled, error) {
	if re, err := regexp.Compile(pattern); err == nil {
		return &compiled{engine: EngineLinear, re2: re}, nil
	}

	if re, err := regexp2.Compile(pattern, regexp2.RE2|regexp2.Multiline); err == nil {
		re.MatchTimeout = e.timeout
		return &compiled{engine: EngineExtendedRE2, ext: re}, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	re.MatchTimeout = e.timeout
	return &compiled{engine: EngineBacktrack, ext: re}, nil
}

// Match is a single match location within the subject string.
type Match struct {
	Start  int
	End    int
	Engine string
}

// FindAll returns every non-overlapping match of pattern in text, in order.
// For the regexp2 tiers, a timeout returns *TimeoutError wrapping the
// elapsed duration; the linear tier never times out.
func (e *Evaluator) FindAll(pattern, text string) ([]Match, error) {
	c, err := e.get(pattern)
	if err != nil {
		return nil, err
	}

	switch c.engine {
	case EngineLinear:
		return findAllRE2(c.re2, text), nil
	default:
		matches, err := findAllRegexp2(c.ext, c.engine, pattern, text)
		if _, isTO := err.(*TimeoutError); isTO {
			e.timeouts.Add(1)
		}
		return matches, err
	}
}

func findAllRE2(re *regexp.Regexp, text string) []Match {
	locs := re.FindAllStringIndex(text, -1)
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		out = append(out, Match{Start: loc[0], End: loc[1], Engine: EngineLinear})
	}
	return out
}

func findAllRegexp2(re *regexp2.Regexp, engine, pattern, text string) ([]Match, error) {
	start := time.Now()
	var out []Match

	m, err := re.FindStringMatch(text)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Pattern: pattern, Elapsed: time.Since(start)}
		}
		return nil, fmt.Errorf("regex match error: %w", err)
	}
	for m != nil {
		out = append(out, Match{Start: m.Index, End: m.Index + m.Length, Engine: engine})
		m, err = re.FindNextMatch(m)
		if err != nil {
			if isTimeout(err) {
				return nil, &TimeoutError{Pattern: pattern, Elapsed: time.Since(start)}
			}
			return nil, fmt.Errorf("regex match error: %w", err)
		}
	}
	return out, nil
}

func isTimeout(err error) bool {
	return strings.Contains(err.Error(), "match timeout")
}
