package types

import "testing"

func TestPreparedInputValidate(t *testing.T) {
	p := &PreparedInput{}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for empty user_input")
	}

	p = &PreparedInput{UserInput: "hello", ExternalChunks: []string{"a", "", "b"}}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.ExternalChunks) != 2 {
		t.Fatalf("expected empty chunks filtered out, got %v", p.ExternalChunks)
	}
}

func TestPreparedInputValidateRejectsNullBytes(t *testing.T) {
	p := &PreparedInput{UserInput: "hello\x00world"}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for null byte in user_input")
	}

	p = &PreparedInput{UserInput: "hello", ExternalChunks: []string{"fine", "bad\x00chunk"}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for null byte in external_chunks")
	}
}

func TestCombinedText(t *testing.T) {
	p := &PreparedInput{UserInput: "hi", ExternalChunks: []string{"chunk1", "chunk2"}}
	got := p.CombinedText()
	want := "hi\nchunk1\nchunk2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityCritical.Rank() >= SeverityLow.Rank() {
		t.Fatal("critical should rank before low")
	}
	if Severity("bogus").IsValid() {
		t.Fatal("bogus severity should be invalid")
	}
}

func TestRuleStateEvaluable(t *testing.T) {
	if !RuleStateActive.Evaluable() {
		t.Fatal("active should be evaluable")
	}
	if !RuleStateCanary.Evaluable() {
		t.Fatal("canary should be evaluable")
	}
	if RuleStateDraft.Evaluable() {
		t.Fatal("draft should not be evaluable")
	}
}

func TestComputeStructuralID(t *testing.T) {
	r1 := &Rule{Pattern: `(?P<secret>abc\d+)`}
	r2 := &Rule{Pattern: `(?P<other>abc\d+)`}
	if r1.ComputeStructuralID() != r2.ComputeStructuralID() {
		t.Fatal("structural IDs should be equal across renamed named groups")
	}
}

func TestRuleSetSnapshotActiveRules(t *testing.T) {
	snap := &RuleSetSnapshot{
		Rules: []*Rule{
			{ID: "a", Severity: SeverityLow, State: RuleStateActive, Enabled: true},
			{ID: "b", Severity: SeverityCritical, State: RuleStateActive, Enabled: true},
			{ID: "c", Severity: SeverityHigh, State: RuleStateDraft, Enabled: true},
			{ID: "d", Severity: SeverityHigh, State: RuleStateActive, Enabled: false},
		},
	}
	active := snap.ActiveRules()
	if len(active) != 2 {
		t.Fatalf("expected 2 active rules, got %d", len(active))
	}
	if active[0].ID != "b" {
		t.Fatalf("expected critical rule first, got %s", active[0].ID)
	}
}

func TestHashInputStable(t *testing.T) {
	h1 := HashInput("hello world")
	h2 := HashInput("hello world")
	if h1.Hex() != h2.Hex() {
		t.Fatal("hash should be deterministic")
	}
	if HashInput("other").Hex() == h1.Hex() {
		t.Fatal("different inputs should hash differently")
	}
}
