// Package ratelimit throttles verification code issuance per user.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cooldownPrefix = "verify-phone:cooldown:"

// ErrCoolingDown is returned while a previous request is still inside its window.
var ErrCoolingDown = errors.New("please wait before requesting another code")

// Cooldown allows one action per key per window, enforced in Redis so every
// instance shares the same view.
type Cooldown struct {
	cache  *redis.Client
	window time.Duration
}

// NewCooldown creates a limiter with the given window.
func NewCooldown(cache *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{cache: cache, window: window}
}

// Acquire reserves the window for key. When the window is already taken it
// returns ErrCoolingDown together with the remaining wait.
func (c *Cooldown) Acquire(ctx context.Context, key string) (time.Duration, error) {
	cacheKey := cooldownPrefix + key

	ok, err := c.cache.SetNX(ctx, cacheKey, "1", c.window).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown reservation failed: %w", err)
	}
	if ok {
		return 0, nil
	}

	ttl, err := c.cache.TTL(ctx, cacheKey).Result()
	if err != nil || ttl < 0 {
		ttl = c.window
	}
	return ttl, ErrCoolingDown
}

// Release frees the window, e.g. after the guarded action failed.
func (c *Cooldown) Release(ctx context.Context, key string) error {
	return c.cache.Del(ctx, cooldownPrefix+key).Err()
}
