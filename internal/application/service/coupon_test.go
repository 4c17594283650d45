package service

import (
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/entity"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCoupon(t *testing.T, env *testEnv, id string, total int, ttl time.Duration) {
	t.Helper()
	_, err := env.svc.CreateCoupon(context.Background(), entity.CreateCouponRequest{
		ID:            id,
		Name:          "coupon " + id,
		TotalQuantity: total,
		ExpiresAt:     env.clock.Now().Add(ttl),
	})
	require.NoError(t, err)
}

// drainClaims прогоняет опубликованные заявки через ProcessClaim в порядке партиции
func drainClaims(t *testing.T, env *testEnv, from int) (map[entity.ClaimResult]int, int) {
	t.Helper()
	results := make(map[entity.ClaimResult]int)
	msgs := env.producer.messages()
	for _, m := range msgs[from:] {
		require.Equal(t, "coupon-issue-request", m.topic)
		var claim entity.CouponClaimMessage
		require.NoError(t, json.Unmarshal(m.value, &claim))
		require.Equal(t, claim.CouponID, m.key, "claims are keyed by coupon id")

		res, err := env.svc.ProcessClaim(context.Background(), claim.CouponID, claim.UserID)
		require.NoError(t, err)
		results[res]++
	}
	return results, len(msgs)
}

func TestCoupon_LimitedIssuance(t *testing.T) {
	env := newTestEnv(t, nil, true)
	ctx := context.Background()
	createCoupon(t, env, "FLASH100", 100, time.Hour)

	for i := 0; i < 150; i++ {
		res, err := env.svc.RequestIssue(ctx, "FLASH100", fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		require.Equal(t, entity.ClaimAccepted, res)
	}

	results, _ := drainClaims(t, env, 0)
	assert.Equal(t, 100, results[entity.ClaimIssued])
	assert.Equal(t, 50, results[entity.ClaimExhausted])

	coupon, err := env.svc.GetCoupon(ctx, "FLASH100")
	require.NoError(t, err)
	assert.Equal(t, 100, coupon.IssuedCount)
	assert.Zero(t, coupon.Remaining())
	assert.Equal(t, 100, env.store.issuedTo("FLASH100"))

	// после распродажи заявка отсекается ещё до брокера
	sent := len(env.producer.messages())
	res, err := env.svc.RequestIssue(ctx, "FLASH100", "late-user")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimExhausted, res)
	assert.Len(t, env.producer.messages(), sent)
}

func TestCoupon_DuplicateRequestRejectedByGate(t *testing.T) {
	env := newTestEnv(t, nil, true)
	ctx := context.Background()
	createCoupon(t, env, "ONCE", 10, time.Hour)

	res, err := env.svc.RequestIssue(ctx, "ONCE", "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimAccepted, res)

	res, err = env.svc.RequestIssue(ctx, "ONCE", "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimDuplicate, res)
	assert.Len(t, env.producer.messages(), 1)

	results, _ := drainClaims(t, env, 0)
	assert.Equal(t, 1, results[entity.ClaimIssued])
	assert.Equal(t, 1, env.store.issuedTo("ONCE"))
}

func TestCoupon_DuplicateWithoutGate(t *testing.T) {
	env := newTestEnv(t, nil, false)
	ctx := context.Background()
	createCoupon(t, env, "ONCE", 10, time.Hour)

	for i := 0; i < 2; i++ {
		res, err := env.svc.RequestIssue(ctx, "ONCE", "user-1")
		require.NoError(t, err)
		require.Equal(t, entity.ClaimAccepted, res)
	}

	results, _ := drainClaims(t, env, 0)
	assert.Equal(t, 1, results[entity.ClaimIssued])
	assert.Equal(t, 1, results[entity.ClaimDuplicate])

	coupon, err := env.svc.GetCoupon(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.IssuedCount, "duplicate must not consume stock")
}

func TestCoupon_RedeliveryDoesNotOversell(t *testing.T) {
	env := newTestEnv(t, nil, true)
	ctx := context.Background()
	createCoupon(t, env, "TWO", 2, time.Hour)

	for _, user := range []string{"a", "b", "c"} {
		_, err := env.svc.RequestIssue(ctx, "TWO", user)
		require.NoError(t, err)
	}

	// каждая заявка доставлена дважды, как после ребаланса
	_, n := drainClaims(t, env, 0)
	msgs := env.producer.messages()[:n]
	for _, m := range msgs {
		var claim entity.CouponClaimMessage
		require.NoError(t, json.Unmarshal(m.value, &claim))
		res, err := env.svc.ProcessClaim(ctx, claim.CouponID, claim.UserID)
		require.NoError(t, err)
		assert.Contains(t, []entity.ClaimResult{entity.ClaimDuplicate, entity.ClaimExhausted}, res)
	}

	coupon, err := env.svc.GetCoupon(ctx, "TWO")
	require.NoError(t, err)
	assert.Equal(t, 2, coupon.IssuedCount)
	assert.Equal(t, 2, env.store.issuedTo("TWO"))
	assert.LessOrEqual(t, coupon.IssuedCount, coupon.TotalQuantity)
}

func TestCoupon_NotFoundAndExpired(t *testing.T) {
	env := newTestEnv(t, nil, true)
	ctx := context.Background()

	res, err := env.svc.RequestIssue(ctx, "NOPE", "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimNotFound, res)

	createCoupon(t, env, "SOON", 5, time.Minute)
	res, err = env.svc.RequestIssue(ctx, "SOON", "user-1")
	require.NoError(t, err)
	require.Equal(t, entity.ClaimAccepted, res)

	// купон истёк, пока заявка стояла в очереди
	env.clock.Advance(2 * time.Minute)
	results, _ := drainClaims(t, env, 0)
	assert.Equal(t, 1, results[entity.ClaimExpired])
	assert.Zero(t, env.store.issuedTo("SOON"))

	res, err = env.svc.RequestIssue(ctx, "SOON", "user-2")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimExpired, res)

	res, err = env.svc.ProcessClaim(ctx, "NOPE", "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimNotFound, res)
}

func TestCoupon_PublishFailureReleasesGate(t *testing.T) {
	env := newTestEnv(t, nil, true)
	ctx := context.Background()
	createCoupon(t, env, "RETRY", 5, time.Hour)

	env.producer.fail = func(string, string, int) error { return errBrokerDown }
	_, err := env.svc.RequestIssue(ctx, "RETRY", "user-1")
	require.ErrorIs(t, err, appers.ErrClaimPublish)

	env.producer.fail = nil
	res, err := env.svc.RequestIssue(ctx, "RETRY", "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimAccepted, res, "user may retry after a failed publish")
}

func TestCoupon_GateDownFallsBackToDatabase(t *testing.T) {
	env := newTestEnv(t, nil, true)
	ctx := context.Background()
	createCoupon(t, env, "NOREDIS", 1, time.Hour)
	env.gate.down = true

	for _, user := range []string{"a", "b"} {
		res, err := env.svc.RequestIssue(ctx, "NOREDIS", user)
		require.NoError(t, err)
		require.Equal(t, entity.ClaimAccepted, res)
	}

	results, _ := drainClaims(t, env, 0)
	assert.Equal(t, 1, results[entity.ClaimIssued])
	assert.Equal(t, 1, results[entity.ClaimExhausted])

	health := env.svc.HealthCheck(ctx)
	assert.Error(t, health.Redis)
	assert.True(t, health.Healthy(), "redis is optional")
}

func TestCoupon_CreateDuplicate(t *testing.T) {
	env := newTestEnv(t, nil, false)
	createCoupon(t, env, "DUP", 1, time.Hour)

	_, err := env.svc.CreateCoupon(context.Background(), entity.CreateCouponRequest{
		ID: "DUP", Name: "again", TotalQuantity: 1, ExpiresAt: env.clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, appers.ErrCouponAlreadyExists)
}
