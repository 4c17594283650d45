package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureTracker_ReportsHandlerErrorOnce(t *testing.T) {
	p := &recordingProcessor{fail: map[string]error{"u1": errors.New("db is down")}}
	tracked := TrackFailures(newTestClaimConsumer(p, nil))

	session := newFakeSession(context.Background(), "m-1", nil)
	claim := newFakeClaim("coupon-issue-request", 0, "FLASH", claimJSON("FLASH", "u1"))

	require.Error(t, tracked.ConsumeClaim(session, claim))
	assert.True(t, tracked.Failed())
	assert.False(t, tracked.Failed(), "flag is reset after read")
	assert.Empty(t, session.markedOffsets())
}

func TestFailureTracker_CleanSessionNotFailed(t *testing.T) {
	p := &recordingProcessor{}
	tracked := TrackFailures(newTestClaimConsumer(p, nil))

	session := newFakeSession(context.Background(), "m-1", map[string][]int32{"coupon-issue-request": {0}})
	claim := newFakeClaim("coupon-issue-request", 0, "FLASH", claimJSON("FLASH", "u1"))

	require.NoError(t, tracked.Setup(session))
	require.NoError(t, tracked.ConsumeClaim(session, claim))
	require.NoError(t, tracked.Cleanup(session))

	assert.False(t, tracked.Failed())
	assert.Equal(t, []int64{0}, session.markedOffsets())
}
