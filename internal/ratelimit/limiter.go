package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
)

const keyReservation = "reserve:user:%d"

// ReservationLimiter caps how fast one user may start units of work. A nil
// limiter allows everything.
type ReservationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewReservationLimiter(client *redis.Client, cfg config.Config) *ReservationLimiter {
	if client == nil || cfg.Redis.ReserveRate <= 0 || cfg.Redis.ReserveBurst <= 0 {
		return nil
	}
	return &ReservationLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.Redis.ReserveRate,
		burst:  cfg.Redis.ReserveBurst,
	}
}

func (l *ReservationLimiter) Allow(ctx context.Context, userID int64) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyReservation, userID), l.rate, l.burst)
}
