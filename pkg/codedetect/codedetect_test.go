package codedetect

import "testing"

func TestDetectFencedBlock(t *testing.T) {
	d := New(true, 0.7)
	res := d.Detect("here is code:\n```python\nprint('hi')\n```\n")
	if !res.IsCode || res.Confidence != 1.0 {
		t.Fatalf("expected fenced block to score 1.0, got %+v", res)
	}
	if res.Reason != "fenced_code_block" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestDetectPlainProse(t *testing.T) {
	d := New(true, 0.7)
	res := d.Detect("Could you please tell me about the weather tomorrow?")
	if res.IsCode {
		t.Fatalf("plain prose should not be detected as code: %+v", res)
	}
}

func TestDetectGoSourceHeuristics(t *testing.T) {
	d := New(true, 0.5)
	src := `func main() {
    if x := compute(); x > 0 {
        fmt.Println(x)
    }
}`
	res := d.Detect(src)
	if !res.IsCode {
		t.Fatalf("expected go source to be detected as code: %+v", res)
	}
}

func TestDetectDisabled(t *testing.T) {
	d := New(false, 0.7)
	res := d.Detect("```go\nfunc f() {}\n```")
	if res.IsCode || res.Reason != "code_detection_disabled" {
		t.Fatalf("expected disabled passthrough, got %+v", res)
	}
}
