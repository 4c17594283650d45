package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClaimGate быстрый фильтр заявок до брокера. Источник истины: БД;
// gate только отсекает очевидные повторы и заявки на распроданный купон.
type ClaimGate interface {
	IsSoldOut(ctx context.Context, couponID string) (bool, error)
	MarkSoldOut(ctx context.Context, couponID string, ttl time.Duration) error
	// TryRequest false: пользователь уже подавал заявку на этот купон
	TryRequest(ctx context.Context, couponID, userID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, couponID, userID string) error
	HealthCheck(ctx context.Context) error
}

type RedisClaimGate struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisClaimGate(client *redis.Client, logger *zap.SugaredLogger) *RedisClaimGate {
	return &RedisClaimGate{client: client, logger: logger}
}

func requestedKey(couponID string) string { return "coupon:issued:" + couponID }
func soldOutKey(couponID string) string   { return "coupon:soldout:" + couponID }

func (g *RedisClaimGate) IsSoldOut(ctx context.Context, couponID string) (bool, error) {
	n, err := g.client.Exists(ctx, soldOutKey(couponID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists sold-out flag: %w", err)
	}
	return n > 0, nil
}

func (g *RedisClaimGate) MarkSoldOut(ctx context.Context, couponID string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := g.client.Set(ctx, soldOutKey(couponID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set sold-out flag: %w", err)
	}
	g.logger.Infof("[coupon: %s] marked as sold out", couponID)
	return nil
}

func (g *RedisClaimGate) TryRequest(ctx context.Context, couponID, userID string, ttl time.Duration) (bool, error) {
	key := requestedKey(couponID)

	pipe := g.client.TxPipeline()
	added := pipe.SAdd(ctx, key, userID)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis sadd requested set: %w", err)
	}
	return added.Val() == 1, nil
}

func (g *RedisClaimGate) Release(ctx context.Context, couponID, userID string) error {
	if err := g.client.SRem(ctx, requestedKey(couponID), userID).Err(); err != nil {
		return fmt.Errorf("redis srem requested set: %w", err)
	}
	return nil
}

func (g *RedisClaimGate) HealthCheck(ctx context.Context) error {
	if err := g.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
