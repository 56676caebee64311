package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/themunch/munch"
)

// Memory is an in-process rate limiter keyed by client identifier. State is
// not shared across processes, so it is only correct for a single-instance
// deployment; use Redis when scaling horizontally.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

type entry struct {
	count     int
	resetTime time.Time
}

// NewMemory returns a new in-memory rate limiter.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow counts one request for the identifier. The first request, or any
// request after the window elapsed, resets the counter; within the window the
// request is denied once the count reaches the limit.
func (m *Memory) Allow(ctx context.Context, identifier string, limit munch.RateLimit) (*munch.RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	e, ok := m.entries[identifier]
	if !ok || e.resetTime.Before(now) {
		e = &entry{
			count:     1,
			resetTime: now.Add(limit.Window),
		}
		m.entries[identifier] = e

		return &munch.RateLimitResult{
			Allowed:   true,
			Remaining: limit.Requests - 1,
			ResetTime: e.resetTime,
		}, nil
	}

	if e.count >= limit.Requests {
		return &munch.RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetTime: e.resetTime,
		}, nil
	}

	e.count++

	return &munch.RateLimitResult{
		Allowed:   true,
		Remaining: limit.Requests - e.count,
		ResetTime: e.resetTime,
	}, nil
}

// Sweep drops entries whose window has passed, bounding memory. It is meant
// to run on a schedule; expired entries are also treated as absent lazily, so
// correctness does not depend on sweep frequency.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for identifier, e := range m.entries {
		if e.resetTime.Before(now) {
			delete(m.entries, identifier)
			removed++
		}
	}

	return removed
}
