package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGate(t *testing.T) (*RedisClaimGate, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisClaimGate(client, zap.NewNop().Sugar()), mr
}

func TestRedisClaimGate_TryRequestOncePerUser(t *testing.T) {
	gate, mr := newTestGate(t)
	ctx := context.Background()

	ok, err := gate.TryRequest(ctx, "SUMMER", "u1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.TryRequest(ctx, "SUMMER", "u1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second request from the same user must be rejected")

	ok, err = gate.TryRequest(ctx, "SUMMER", "u2", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.TryRequest(ctx, "WINTER", "u1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "sets are per coupon")

	members, err := mr.Members(requestedKey("SUMMER"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)
	assert.Positive(t, mr.TTL(requestedKey("SUMMER")))
}

func TestRedisClaimGate_ReleaseAllowsRetry(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	ok, err := gate.TryRequest(ctx, "SUMMER", "u1", 0)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, gate.Release(ctx, "SUMMER", "u1"))

	ok, err = gate.TryRequest(ctx, "SUMMER", "u1", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimGate_SoldOutFlag(t *testing.T) {
	gate, mr := newTestGate(t)
	ctx := context.Background()

	soldOut, err := gate.IsSoldOut(ctx, "SUMMER")
	require.NoError(t, err)
	assert.False(t, soldOut)

	require.NoError(t, gate.MarkSoldOut(ctx, "SUMMER", time.Minute))

	soldOut, err = gate.IsSoldOut(ctx, "SUMMER")
	require.NoError(t, err)
	assert.True(t, soldOut)

	mr.FastForward(2 * time.Minute)

	soldOut, err = gate.IsSoldOut(ctx, "SUMMER")
	require.NoError(t, err)
	assert.False(t, soldOut, "flag expires together with the coupon")
}

func TestRedisClaimGate_Unavailable(t *testing.T) {
	gate, mr := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, gate.HealthCheck(ctx))

	mr.Close()

	assert.Error(t, gate.HealthCheck(ctx))
	_, err := gate.TryRequest(ctx, "SUMMER", "u1", time.Minute)
	assert.Error(t, err)
	_, err = gate.IsSoldOut(ctx, "SUMMER")
	assert.Error(t, err)
}
