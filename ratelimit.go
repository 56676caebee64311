package munch

import (
	"context"
	"time"
)

// RateLimitService is the interface that wraps the per-identifier request
// counter. The in-memory implementation is only correct for a single-process
// deployment; multi-instance deployments need the shared-store one.
type RateLimitService interface {
	Allow(ctx context.Context, identifier string, limit RateLimit) (*RateLimitResult, error)
}

// RateLimit is the per-endpoint threshold: at most Requests per Window.
type RateLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// RateLimitResult reports the outcome of a single Allow call.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}
