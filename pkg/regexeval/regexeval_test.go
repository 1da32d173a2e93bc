package regexeval

import (
	"testing"
	"time"
)

func TestFindAllLinearEngine(t *testing.T) {
	e := New(100 * time.Millisecond)
	matches, err := e.FindAll(`\d+`, "order 123 and 456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Engine != EngineLinear {
		t.Fatalf("expected linear engine, got %s", matches[0].Engine)
	}
}

func TestFindAllExtendedLookaround(t *testing.T) {
	e := New(100 * time.Millisecond)
	// negative lookahead isn't RE2-expressible, forces the regexp2 tier.
	matches, err := e.FindAll(`foo(?!bar)`, "foobar foobaz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Engine == EngineLinear {
		t.Fatalf("expected a non-linear engine for lookaround pattern")
	}
}

func TestCompileCachesPattern(t *testing.T) {
	e := New(100 * time.Millisecond)
	if err := e.Compile(`abc`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.cache[`abc`]; !ok {
		t.Fatal("expected pattern to be cached")
	}
	e.Reset()
	if _, ok := e.cache[`abc`]; ok {
		t.Fatal("expected cache to be cleared after Reset")
	}
}

func TestCompileInvalidPattern(t *testing.T) {
	e := New(100 * time.Millisecond)
	if err := e.Compile(`(unterminated`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestFindAllTimeoutIncrementsCounter(t *testing.T) {
	e := New(1 * time.Millisecond)
	// the lookahead keeps the pattern off the stdlib RE2 tier (RE2 can't
	// express it), so a backtracking regexp2 tier runs it; the nested
	// quantifier against a non-matching suffix is catastrophic for a
	// backtracking engine.
	_, err := e.FindAll(`(a+)+(?=!)$`, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa?")
	if err == nil {
		t.Skip("pattern did not time out in this environment")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if e.TimeoutCount() != 1 {
		t.Fatalf("expected timeout counter to increment, got %d", e.TimeoutCount())
	}
}
