package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	tok := New([]byte("topsecret"))
	token := tok.Generate("ruleset-abcd1234", 1700000000)

	parsed, err := tok.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ruleset-abcd1234", parsed.RuleSetVersion)
	assert.EqualValues(t, 1700000000, parsed.IssuedAtUnix)
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	a := New([]byte("secret-a"))
	b := New([]byte("secret-b"))
	token := a.Generate("ruleset-abcd1234", 1700000000)

	_, err := b.Parse(token)
	assert.Error(t, err, "expected signature mismatch with different secret")
}

func TestParseRejectsMalformedToken(t *testing.T) {
	tok := New([]byte("secret"))

	_, err := tok.Parse("not-valid-base64!!")
	assert.Error(t, err, "expected decode error")

	_, err = tok.Parse("aGVsbG8=")
	assert.Error(t, err, "expected malformed-token error for decodable but non-pipe-delimited payload")
}

func TestRedactNeverLeaksRawText(t *testing.T) {
	preview := Redact("DROP TABLE users; --")
	require.NotEmpty(t, preview)
	assert.LessOrEqual(t, len(preview), 64, "preview unexpectedly long: %q", preview)

	for _, banned := range []string{"DROP", "TABLE", "users"} {
		assert.NotContains(t, preview, banned, "preview leaked raw text: %q", preview)
	}
}
