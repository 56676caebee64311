package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themunch/munch"
)

func TestMemory_Allow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	limit := munch.RateLimit{Requests: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		res, err := m.Allow(context.Background(), "1.2.3.4", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 4-i, res.Remaining)
		assert.Equal(t, now.Add(time.Minute), res.ResetTime)
	}

	// 6th request within the window is denied
	res, err := m.Allow(context.Background(), "1.2.3.4", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, now.Add(time.Minute), res.ResetTime)

	// after the window passes, the counter resets
	now = now.Add(time.Minute + time.Second)
	res, err = m.Allow(context.Background(), "1.2.3.4", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestMemory_AllowPerIdentifier(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	limit := munch.RateLimit{Requests: 1, Window: time.Minute}

	res, err := m.Allow(context.Background(), "1.2.3.4", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = m.Allow(context.Background(), "1.2.3.4", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// another identifier has its own window
	res, err = m.Allow(context.Background(), "5.6.7.8", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemory_Sweep(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	limit := munch.RateLimit{Requests: 5, Window: time.Minute}

	_, err := m.Allow(context.Background(), "expired", limit)
	require.NoError(t, err)

	assert.Equal(t, 0, m.Sweep())

	now = now.Add(2 * time.Minute)
	_, err = m.Allow(context.Background(), "fresh", limit)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Sweep())
	assert.Len(t, m.entries, 1)
	assert.Contains(t, m.entries, "fresh")
}
