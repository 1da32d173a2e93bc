// Package codedetect implements a deterministic, dependency-free heuristic
// for recognizing that an input is source code rather than natural-language
// prompt text, so the scanner can skip rule matching on legitimate code pastes.
package codedetect

import (
	"regexp"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```\\w*\\s*\\n.*?```")
	indentationRe = regexp.MustCompile(`(?m)^(?:    |\t)`)
	wordRe        = regexp.MustCompile(`\b\w+\b`)
	punctChars    = "{}[]();:,.<>!@#$%^&*-+=|\\/?"
)

var languageKeywords = map[string]map[string]bool{
	"python": set("def", "class", "import", "from", "return", "if", "else", "elif",
		"for", "while", "try", "except", "finally", "with", "as", "lambda",
		"yield", "async", "await", "raise", "assert", "pass", "break", "continue"),
	"javascript": set("function", "const", "let", "var", "return", "if", "else", "for",
		"while", "switch", "case", "break", "continue", "try", "catch",
		"finally", "async", "await", "class", "extends", "import", "export"),
	"java": set("public", "private", "protected", "class", "interface", "extends",
		"implements", "static", "final", "void", "return", "if", "else",
		"for", "while", "switch", "case", "try", "catch", "finally", "throw"),
	"sql": set("select", "from", "where", "insert", "update", "delete", "create",
		"drop", "alter", "table", "join", "inner", "outer", "left", "right",
		"group", "order", "by", "having", "limit", "offset"),
	"go": set("func", "package", "import", "type", "struct", "interface", "return",
		"if", "else", "for", "range", "switch", "case", "defer", "go",
		"chan", "select", "var", "const"),
	"rust": set("fn", "let", "mut", "const", "static", "struct", "enum", "impl",
		"trait", "type", "use", "mod", "pub", "if", "else", "match",
		"loop", "while", "for", "return", "break", "continue"),
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Detector scores text for code-likelihood.
type Detector struct {
	Enabled             bool
	ConfidenceThreshold float64
}

// New creates a Detector.
func New(enabled bool, confidenceThreshold float64) *Detector {
	return &Detector{Enabled: enabled, ConfidenceThreshold: confidenceThreshold}
}

// Result is the outcome of a single detect call.
type Result struct {
	IsCode     bool
	Confidence float64
	Reason     string
}

// Detect scores text and decides whether it looks like code.
func (d *Detector) Detect(text string) Result {
	if !d.Enabled {
		return Result{Reason: "code_detection_disabled"}
	}

	if fencedBlockRe.MatchString(text) {
		return Result{IsCode: true, Confidence: 1.0, Reason: "fenced_code_block"}
	}

	indentScore := indentationScore(text)
	tokenScore := tokenScore(text)
	keywordScore := keywordScore(text)

	confidence := 0.4*indentScore + 0.3*tokenScore + 0.3*keywordScore
	isCode := confidence >= d.ConfidenceThreshold

	return Result{
		IsCode:     isCode,
		Confidence: confidence,
		Reason:     detectionReason(indentScore, tokenScore, keywordScore),
	}
}

func indentationScore(text string) float64 {
	lines := strings.Split(text, "\n")
	totalLines := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			totalLines++
		}
	}
	if totalLines == 0 {
		return 0.0
	}

	indentedLines := len(indentationRe.FindAllString(text, -1))
	ratio := float64(indentedLines) / float64(totalLines)

	switch {
	case ratio >= 0.5:
		return 1.0
	case ratio >= 0.3:
		return 0.7
	case ratio >= 0.1:
		return 0.4
	default:
		return 0.0
	}
}

func tokenScore(text string) float64 {
	var puncts, totalChars int
	for _, r := range text {
		if r == ' ' || r == '\n' {
			continue
		}
		totalChars++
		if strings.ContainsRune(punctChars, r) {
			puncts++
		}
	}
	if totalChars == 0 {
		return 0.0
	}
	ratio := float64(puncts) / float64(totalChars)
	switch {
	case ratio >= 0.3:
		return 1.0
	case ratio >= 0.2:
		return 0.7
	case ratio >= 0.1:
		return 0.4
	default:
		return 0.0
	}
}

func keywordScore(text string) float64 {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 0.0
	}
	var keywordCount int
	for _, w := range words {
		for _, kw := range languageKeywords {
			if kw[w] {
				keywordCount++
				break
			}
		}
	}
	ratio := float64(keywordCount) / float64(len(words))
	switch {
	case ratio >= 0.2:
		return 1.0
	case ratio >= 0.1:
		return 0.7
	case ratio >= 0.05:
		return 0.4
	default:
		return 0.0
	}
}

func detectionReason(indentation, token, keyword float64) string {
	top := "indentation"
	best := indentation
	if token > best {
		top, best = "token_ratio", token
	}
	if keyword > best {
		top = "keywords"
	}
	return "code_detected_" + top
}
