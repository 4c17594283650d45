package common

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Version версия сервиса, отдаётся в /health
const Version = "0.1.0"

func PgInterval(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%d seconds", sec)
}

// NextRetryDelay детерминированный бэкофф для outbox: base * 2^(retryCount-1), не больше limit.
// Монотонно не убывает по retryCount.
func NextRetryDelay(retryCount int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if limit > 0 && base >= limit {
		return limit
	}
	if retryCount < 1 {
		retryCount = 1
	}

	d := base
	for i := 1; i < retryCount; i++ {
		// защита от переполнения int64
		if d > (1<<62)/2 {
			d = 1 << 62
			break
		}
		d *= 2
		if limit > 0 && d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

func NextBackoffWithJitter(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		attempts = 20
	}

	base := time.Second << attempts

	limit := 30 * time.Minute
	if base > limit {
		base = limit
	}

	jitter := time.Duration(rand.Int63n(int64(base / 2)))

	return base/2 + jitter
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
