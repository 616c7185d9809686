package detect

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// pairLocker coordinates advisory per-pair locks so that replicas scanning
// shared storage skip redundant work. Locking is an optimization only; the
// UNIQUE constraint on anomaly records is what guarantees correctness.
type pairLocker interface {
	// TryLock attempts to claim the pair. false means another replica holds
	// it and the pair should be skipped this pass.
	TryLock(ctx context.Context, p telemetry.Pair) (bool, error)
	// Unlock releases the pair.
	Unlock(ctx context.Context, p telemetry.Pair)
	Close() error
}

// redisLocker implements pairLocker with SET NX and a TTL, so a crashed
// replica's locks expire on their own.
type redisLocker struct {
	client *redis.Client
	cfg    LockConfig
}

func newRedisLocker(cfg LockConfig) *redisLocker {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	return &redisLocker{client: client, cfg: cfg}
}

func (l *redisLocker) TryLock(ctx context.Context, p telemetry.Pair) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(p), "1", l.cfg.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire pair lock: %w", err)
	}
	return ok, nil
}

func (l *redisLocker) Unlock(ctx context.Context, p telemetry.Pair) {
	l.client.Del(ctx, lockKey(p))
}

func (l *redisLocker) Close() error {
	return l.client.Close()
}

func lockKey(p telemetry.Pair) string {
	return "detect:pair:" + p.AssetID + ":" + p.Metric
}
