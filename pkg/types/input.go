package types

import (
	"fmt"
	"strings"
)

// PreparedInput is the unit of work a caller submits for scanning. Chunks
// are produced upstream (file extraction, attachment parsing, etc); Layer-0
// never fetches or parses them itself.
type PreparedInput struct {
	UserInput      string   `json:"user_input"`
	ExternalChunks []string `json:"external_chunks,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`

	// MLSuspicionScore, when set, is an externally computed score (e.g. from
	// an upstream ML classifier) that the scanner passes through untouched
	// on the result rather than computing itself.
	MLSuspicionScore *float64 `json:"ml_suspicion_score,omitempty"`
}

// Validate enforces the invariants PreparedInput must satisfy before it can
// be scanned: non-empty user input, no embedded null bytes, no empty
// chunks. Size-based bounds (max_input_length, max_chunks) depend on
// runtime config and are enforced separately by the scanner.
func (p *PreparedInput) Validate() error {
	if p.UserInput == "" {
		return fmt.Errorf("user_input must not be empty")
	}
	if strings.ContainsRune(p.UserInput, '\x00') {
		return fmt.Errorf("user_input must not contain null bytes")
	}
	filtered := p.ExternalChunks[:0:0]
	for _, c := range p.ExternalChunks {
		if c == "" {
			continue
		}
		if strings.ContainsRune(c, '\x00') {
			return fmt.Errorf("external_chunks must not contain null bytes")
		}
		filtered = append(filtered, c)
	}
	p.ExternalChunks = filtered
	return nil
}

// CombinedText joins the raw user input and every chunk with newlines; the
// scanner hashes it for the allowlisted-hash check. The "combined" scan
// stage builds its own text from the normalized parts joined by spaces.
func (p *PreparedInput) CombinedText() string {
	out := p.UserInput
	for _, c := range p.ExternalChunks {
		out += "\n" + c
	}
	return out
}
