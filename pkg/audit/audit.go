// Package audit issues and parses traceability tokens for scan results and
// produces redacted previews of matched text. Neither function ever needs,
// nor is given, the raw matched text beyond the single hash computation
// in Redact - it is discarded immediately after.
// Grounded on original_source/layer0/scanner.py's _generate_audit_token
// and _create_redacted_preview.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Tokenizer issues HMAC-anchored audit tokens binding a scan to the rule-set
// version and issuance time, without revealing the secret or any scanned
// content.
type Tokenizer struct {
	secret []byte
}

// New creates a Tokenizer using secret as the HMAC key. It should be the
// same secret datasets are signed with.
func New(secret []byte) *Tokenizer {
	return &Tokenizer{secret: secret}
}

// Token is the decoded, verified form of an audit token.
type Token struct {
	RuleSetVersion string
	IssuedAtUnix   int64
}

// Generate produces an opaque, URL-safe audit token for ruleSetVersion,
// stamped with issuedAtUnix. The token is "signature|version|timestamp",
// base64url-encoded; the signature is the first 16 hex characters of an
// HMAC-SHA256 over "version|timestamp".
func (t *Tokenizer) Generate(ruleSetVersion string, issuedAtUnix int64) string {
	timestamp := strconv.FormatInt(issuedAtUnix, 10)
	message := ruleSetVersion + "|" + timestamp

	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(message))
	signature := hex.EncodeToString(mac.Sum(nil))[:16]

	tokenData := signature + "|" + ruleSetVersion + "|" + timestamp
	return base64.URLEncoding.EncodeToString([]byte(tokenData))
}

// Parse decodes and verifies an audit token produced by Generate, returning
// an error if it is malformed or its signature does not match.
func (t *Tokenizer) Parse(token string) (*Token, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("audit: decode token: %w", err)
	}

	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("audit: malformed token")
	}
	signature, version, timestamp := parts[0], parts[1], parts[2]

	message := version + "|" + timestamp
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(message))
	want := hex.EncodeToString(mac.Sum(nil))[:16]
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return nil, fmt.Errorf("audit: signature mismatch")
	}

	issuedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("audit: invalid timestamp: %w", err)
	}

	return &Token{RuleSetVersion: version, IssuedAtUnix: issuedAt}, nil
}

// Redact turns raw matched text into a preview safe to log or return to a
// caller: a short hash digest, never the original content.
func Redact(matchedText string) string {
	sum := sha256.Sum256([]byte(matchedText))
	return fmt.Sprintf("[REDACTED:match:sha256=%s]", hex.EncodeToString(sum[:])[:16])
}
