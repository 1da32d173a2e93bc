// Package prefilter implements a two-stage approximate-then-exact prefilter:
// a Bloom filter rejects clean input in O(1), and only text the Bloom
// filter flags as possibly interesting pays for an Aho-Corasick scan.
// Grounded on titus's pkg/prefilter/prefilter.go (Aho-Corasick keyword-to-
// rules mapping) and the original prefilter.py (Bloom pre-check, keyword
// extraction heuristics, sliding-window substring probe).
package prefilter

import (
	"regexp"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cloudflare/ahocorasick"

	"github.com/l0scanner/l0scanner/pkg/types"
)

var (
	metacharsRe = regexp.MustCompile(`[\^$*+?{}()\[\]|\\]`)
	quotedDblRe = regexp.MustCompile(`"([^"]{3,})"`)
	quotedSglRe = regexp.MustCompile(`'([^']{3,})'`)
)

// ExtractKeywords pulls literal, case-folded tokens out of a regex pattern
// once its metacharacters are replaced by spaces: anything at least 3
// characters long, containing a letter, and not purely numeric, plus any
// quoted literal substrings. A token taken from an optional group or from
// one branch of an alternation need not appear in text the pattern matches.
func ExtractKeywords(pattern string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(kw string) {
		kw = strings.ToLower(kw)
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}

	cleaned := metacharsRe.ReplaceAllString(pattern, " ")
	for _, token := range strings.Fields(cleaned) {
		if len(token) >= 3 && hasLetter(token) && !isAllDigits(token) {
			add(token)
		}
	}
	for _, m := range quotedDblRe.FindAllStringSubmatch(pattern, -1) {
		add(m[1])
	}
	for _, m := range quotedSglRe.FindAllStringSubmatch(pattern, -1) {
		add(m[1])
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Prefilter combines a Bloom filter with an Aho-Corasick automaton over
// keywords extracted from rule patterns.
type Prefilter struct {
	Enabled bool

	bloom          *bloom.BloomFilter
	automaton      *ahocorasick.Matcher
	keywords       []string
	keywordRules   map[string][]*types.Rule
	noKeywordRules []*types.Rule
}

// Build constructs a Prefilter from rules. Rules whose pattern yields no
// extractable keyword are always returned by Filter, same as titus's
// noKeywordRules. An empty keyword set disables the prefilter entirely
// (every input is passed through) rather than erroring.
func Build(rules []*types.Rule) *Prefilter {
	pf := &Prefilter{
		keywordRules:   make(map[string][]*types.Rule),
		noKeywordRules: make([]*types.Rule, 0),
	}

	keywordSet := make(map[string]bool)
	for _, rule := range rules {
		kws := ExtractKeywords(rule.Pattern)
		if len(kws) == 0 {
			pf.noKeywordRules = append(pf.noKeywordRules, rule)
			continue
		}
		for _, kw := range kws {
			if !keywordSet[kw] {
				keywordSet[kw] = true
				pf.keywords = append(pf.keywords, kw)
			}
			pf.keywordRules[kw] = append(pf.keywordRules[kw], rule)
		}
	}

	if len(pf.keywords) == 0 {
		pf.Enabled = false
		return pf
	}

	bf := bloom.NewWithEstimates(uint(len(pf.keywords))*4, 0.001)
	for _, kw := range pf.keywords {
		bf.AddString(kw)
	}

	pf.bloom = bf
	pf.automaton = ahocorasick.NewStringMatcher(pf.keywords)
	pf.Enabled = true
	return pf
}

// KeywordCount reports how many distinct keywords the prefilter indexes.
func (pf *Prefilter) KeywordCount() int { return len(pf.keywords) }

// Filter returns every rule that might match content: every no-keyword
// rule, plus every keyword-gated rule whose keyword the Bloom+AC stages
// confirm is present. When the prefilter is disabled, every rule is
// returned (fail open on the prefilter itself — it is an optimization,
// never a security boundary).
func (pf *Prefilter) Filter(content string) []*types.Rule {
	if !pf.Enabled {
		return append([]*types.Rule(nil), pf.noKeywordRules...)
	}

	result := append([]*types.Rule(nil), pf.noKeywordRules...)
	if !pf.bloomMightContain(content) {
		return result
	}

	seen := make(map[*types.Rule]bool, len(result))
	for _, r := range result {
		seen[r] = true
	}

	lower := strings.ToLower(content)
	for _, idx := range pf.automaton.Match([]byte(lower)) {
		keyword := pf.keywords[idx]
		for _, rule := range pf.keywordRules[keyword] {
			if !seen[rule] {
				seen[rule] = true
				result = append(result, rule)
			}
		}
	}
	return result
}

// bloomMightContain applies the same two-pronged probabilistic check as
// the original: whole lowercase words of length >= 3, and a sliding
// 10-rune window, either of which might hit a stored keyword.
func (pf *Prefilter) bloomMightContain(content string) bool {
	lower := strings.ToLower(content)

	for _, word := range strings.Fields(lower) {
		if len(word) >= 3 && pf.bloom.TestString(word) {
			return true
		}
	}

	runes := []rune(lower)
	const window = 10
	for i := 0; i+window <= len(runes); i++ {
		if pf.bloom.TestString(string(runes[i : i+window])) {
			return true
		}
	}
	return false
}
