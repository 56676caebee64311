package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/themunch/munch"
)

const keyPrefix = "ratelimit:"

// Redis is a shared-store rate limiter for multi-instance deployments. The
// counter lives in a keyed window: the first INCR of a window attaches the
// TTL, later ones ride on it until it expires.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a rate limiter backed by the given redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
	}
}

func (r *Redis) Allow(ctx context.Context, identifier string, limit munch.RateLimit) (*munch.RateLimitResult, error) {
	key := keyPrefix + identifier

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "ratelimit: incr")
	}

	if count == 1 {
		if err := r.client.PExpire(ctx, key, limit.Window).Err(); err != nil {
			return nil, errors.Wrap(err, "ratelimit: pexpire")
		}
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "ratelimit: pttl")
	}
	if ttl < 0 {
		// Counter survived without a TTL (e.g. a crash between INCR and
		// PEXPIRE); reattach the window rather than leaking the key.
		ttl = limit.Window
		if err := r.client.PExpire(ctx, key, limit.Window).Err(); err != nil {
			return nil, errors.Wrap(err, "ratelimit: pexpire")
		}
	}

	resetTime := time.Now().Add(ttl)

	if count > int64(limit.Requests) {
		return &munch.RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetTime: resetTime,
		}, nil
	}

	return &munch.RateLimitResult{
		Allowed:   true,
		Remaining: limit.Requests - int(count),
		ResetTime: resetTime,
	}, nil
}
