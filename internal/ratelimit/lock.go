package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
)

const keySettlementLock = "settle:%s"

// compare-and-delete so an expired holder cannot drop a newer lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// SettlementLocker coalesces concurrent deliveries of the same payment
// notification. Settlement stays correct without it.
type SettlementLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSettlementLocker(client *redis.Client, cfg config.Config) *SettlementLocker {
	if client == nil || cfg.Redis.SettlementLockTTL <= 0 {
		return nil
	}
	return &SettlementLocker{client: client, ttl: cfg.Redis.SettlementLockTTL}
}

// Acquire reports false when another caller holds the reference. The
// returned release func is always safe to call.
func (l *SettlementLocker) Acquire(ctx context.Context, reference string) (func(), bool, error) {
	noop := func() {}
	if l == nil {
		return noop, true, nil
	}

	key := fmt.Sprintf(keySettlementLock, strings.TrimSpace(reference))
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return noop, ok, err
	}
	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, true, nil
}
