package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l0scanner/l0scanner/pkg/types"
)

func TestRecordAndLookupRoundTrip(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	res := &types.ScanResult{
		Status:           types.StatusRejected,
		RuleSetVersion:   "ruleset-abcd1234",
		AuditToken:       "token-123",
		ProcessingTimeMs: 4.2,
		Matches:          []types.RuleMatch{{RuleID: "r1"}},
		Timestamp:        time.Now(),
	}

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, res, "session-1", "request-1"))

	entry, err := store.RecentByToken(ctx, "token-123")
	require.NoError(t, err)
	assert.Equal(t, string(types.StatusRejected), entry.Status)
	assert.Equal(t, 1, entry.MatchedRuleCount)
	assert.Equal(t, "session-1", entry.SessionID)
}

func TestRecentByTokenMissing(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.RecentByToken(context.Background(), "does-not-exist")
	assert.Error(t, err, "expected error for missing audit token")
}
