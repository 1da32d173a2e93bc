// Package normalize implements the ten-stage text normalization pipeline
// that defeats common obfuscation tricks (zero-width spacing, bidi
// overrides, homoglyph substitution, base64-wrapped payloads, PDF
// extraction artifacts) before a scan ever runs a rule against the text.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Stage names, used both as Normalizer.Disabled keys and in tests.
const (
	StageNFKC         = "unicode_nfkc"
	StageZeroWidth    = "zero_width"
	StageBidi         = "bidi"
	StageWhitespace   = "whitespace"
	StageHomoglyphs   = "homoglyphs"
	StageEmoji        = "emoji"
	StageBase64       = "base64"
	StagePDFArtifacts = "pdf_artifacts"
	StageSeparators   = "separators"
	StageControlChars = "control_chars"
)

var zeroWidthChars = []string{
	"​", "‌", "‍", string(rune(0xFEFF)), "⁠", "᠎",
}

var bidiChars = []string{
	"‪", "‫", "‬", "‭", "‮",
	"⁦", "⁧", "⁨", "⁩",
}

var separators = []string{
	"•", "‣", "⁃", "⁌", "⁍",
	"−", "–", "—", "―",
}

var homoglyphMap = map[string]string{
	// Cyrillic
	"а": "a", "е": "e", "о": "o", "р": "p", "с": "c", "у": "y", "х": "x",
	"А": "A", "В": "B", "Е": "E", "К": "K", "М": "M", "Н": "H", "О": "O",
	"Р": "P", "С": "C", "Т": "T", "Х": "X",
	// Greek
	"α": "a", "β": "b", "γ": "g", "δ": "d", "ε": "e", "ζ": "z", "η": "h",
	"θ": "th", "ι": "i", "κ": "k", "λ": "l", "μ": "m", "ν": "n", "ξ": "x",
	"ο": "o", "π": "p", "ρ": "r", "σ": "s", "τ": "t", "υ": "u", "φ": "f",
	"χ": "ch", "ψ": "ps", "ω": "o",
	"Α": "A", "Β": "B", "Γ": "G", "Δ": "D", "Ε": "E", "Ζ": "Z", "Η": "H",
	"Θ": "TH", "Ι": "I", "Κ": "K", "Λ": "L", "Μ": "M", "Ν": "N", "Ξ": "X",
	"Ο": "O", "Π": "P", "Ρ": "R", "Σ": "S", "Τ": "T", "Υ": "U", "Φ": "F",
	"Χ": "CH", "Ψ": "PS", "Ω": "O",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	base64Re     = regexp.MustCompile(`[A-Za-z0-9+/]{50,}={0,2}`)
	hyphenwrapRe = regexp.MustCompile(`-\s*\n\s*`)
	multiNLRe    = regexp.MustCompile(`\n{3,}`)
	emojiRe      = regexp.MustCompile(
		"[\U0001F600-\U0001F64F\U0001F300-\U0001F5FF\U0001F680-\U0001F6FF" +
			"\U0001F1E0-\U0001F1FF\U00002702-\U000027B0\U000024C2-\U0001F251]+")
)

// Normalizer runs the ten ordered normalization stages, any subset of which
// can be individually disabled.
type Normalizer struct {
	Enabled  bool
	Disabled map[string]bool
}

// New creates a Normalizer that skips the stages named in disabledSteps;
// with enabled false, Normalize returns its input unchanged.
func New(enabled bool, disabledSteps []string) *Normalizer {
	disabled := make(map[string]bool, len(disabledSteps))
	for _, s := range disabledSteps {
		disabled[s] = true
	}
	return &Normalizer{Enabled: enabled, Disabled: disabled}
}

// Normalize runs every enabled stage in order and returns the result.
// Emoji elision and control-character removal run after whitespace
// collapse and can leave runs of spaces behind, so the whitespace stage
// runs once more at the end; running Normalize again on its own output
// then changes nothing.
func (n *Normalizer) Normalize(text string) string {
	if !n.Enabled {
		return text
	}
	text = n.stepNFKC(text)
	text = n.stepZeroWidth(text)
	text = n.stepBidi(text)
	text = n.stepWhitespace(text)
	text = n.stepHomoglyphs(text)
	text = n.stepEmoji(text)
	text = n.stepBase64(text)
	text = n.stepPDFArtifacts(text)
	text = n.stepSeparators(text)
	text = n.stepControlChars(text)
	text = n.stepWhitespace(text)
	return text
}

func (n *Normalizer) enabled(stage string) bool { return !n.Disabled[stage] }

func (n *Normalizer) stepNFKC(text string) string {
	if !n.enabled(StageNFKC) {
		return text
	}
	return norm.NFKC.String(text)
}

func (n *Normalizer) stepZeroWidth(text string) string {
	if !n.enabled(StageZeroWidth) {
		return text
	}
	for _, c := range zeroWidthChars {
		text = strings.ReplaceAll(text, c, "")
	}
	return text
}

func (n *Normalizer) stepBidi(text string) string {
	if !n.enabled(StageBidi) {
		return text
	}
	for _, c := range bidiChars {
		text = strings.ReplaceAll(text, c, "")
	}
	return text
}

func (n *Normalizer) stepWhitespace(text string) string {
	if !n.enabled(StageWhitespace) {
		return text
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

func (n *Normalizer) stepHomoglyphs(text string) string {
	if !n.enabled(StageHomoglyphs) {
		return text
	}
	var b strings.Builder
	for _, r := range text {
		if repl, ok := homoglyphMap[string(r)]; ok {
			b.WriteString(repl)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (n *Normalizer) stepEmoji(text string) string {
	if !n.enabled(StageEmoji) {
		return text
	}
	return emojiRe.ReplaceAllString(text, " ")
}

func (n *Normalizer) stepBase64(text string) string {
	if !n.enabled(StageBase64) {
		return text
	}
	return base64Re.ReplaceAllString(text, "[BASE64_REMOVED]")
}

func (n *Normalizer) stepPDFArtifacts(text string) string {
	if !n.enabled(StagePDFArtifacts) {
		return text
	}
	text = hyphenwrapRe.ReplaceAllString(text, "")
	text = multiNLRe.ReplaceAllString(text, "\n\n")
	return text
}

func (n *Normalizer) stepSeparators(text string) string {
	if !n.enabled(StageSeparators) {
		return text
	}
	for _, sep := range separators {
		text = strings.ReplaceAll(text, sep, "-")
	}
	return text
}

func (n *Normalizer) stepControlChars(text string) string {
	if !n.enabled(StageControlChars) {
		return text
	}
	var b strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || r == '\r' || !unicode.Is(unicode.C, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
