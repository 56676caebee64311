package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themunch/munch"
)

func newTestService(t *testing.T) munch.SubscriberService {
	t.Helper()

	db := NewDB(filepath.Join(t.TempDir(), "munch.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	return NewSubscriberService(db)
}

func TestUpsertPending(t *testing.T) {
	ss := newTestService(t)
	ctx := context.Background()

	sub := munch.NewSubscriber("user@example.com")
	sub.Source = "landing"

	res, err := ss.UpsertPending(ctx, sub)
	require.NoError(t, err)
	assert.True(t, res.Created)

	first, err := ss.FindByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, munch.StatusPendingVerification, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	// Resubmitting converges on the same record and preserves createdAt.
	again := munch.NewSubscriber("user@example.com")
	again.Profile = "builder"

	res, err = ss.UpsertPending(ctx, again)
	require.NoError(t, err)
	assert.False(t, res.Created)

	second, err := ss.FindByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "builder", second.Profile)
	assert.Equal(t, munch.StatusPendingVerification, second.Status)
}

func TestUpsertPending_Concurrent(t *testing.T) {
	ss := newTestService(t)
	ctx := context.Background()

	const writers = 8
	created := make(chan bool, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ss.UpsertPending(ctx, munch.NewSubscriber("race@example.com"))
			assert.NoError(t, err)
			created <- res.Created
		}()
	}
	wg.Wait()
	close(created)

	// Everyone gets a happy-path response; exactly one writer inserted.
	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)

	sub, err := ss.FindByEmail(ctx, "race@example.com")
	require.NoError(t, err)
	assert.Equal(t, munch.StatusPendingVerification, sub.Status)
	assert.NotEmpty(t, sub.ID)
}

func TestFindByEmail_NotFound(t *testing.T) {
	ss := newTestService(t)

	_, err := ss.FindByEmail(context.Background(), "missing@example.com")
	assert.Equal(t, munch.ErrNotFound, munch.ErrorCode(err))
}

func TestApplyVerification(t *testing.T) {
	ss := newTestService(t)
	ctx := context.Background()

	_, err := ss.UpsertPending(ctx, munch.NewSubscriber("user@example.com"))
	require.NoError(t, err)

	status, err := ss.ApplyVerification(ctx, "user@example.com", munch.Verification{
		Deliverable: true,
		Result:      munch.ResultMXOK,
		MX:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, munch.StatusActive, status)

	sub, err := ss.FindByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, munch.StatusActive, sub.Status)
	require.NotNil(t, sub.Verifier)
	assert.Equal(t, munch.ResultMXOK, sub.Verifier.Result)

	// Re-verification overwrites the previous outcome and may flip the status.
	status, err = ss.ApplyVerification(ctx, "user@example.com", munch.Verification{
		Result: munch.ResultNoMX,
	})
	require.NoError(t, err)
	assert.Equal(t, munch.StatusInvalid, status)

	sub, err = ss.FindByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, munch.StatusInvalid, sub.Status)
	assert.Equal(t, munch.ResultNoMX, sub.Verifier.Result)
}

func TestApplyVerification_NotFound(t *testing.T) {
	ss := newTestService(t)

	_, err := ss.ApplyVerification(context.Background(), "missing@example.com", munch.Verification{})
	assert.Equal(t, munch.ErrNotFound, munch.ErrorCode(err))
}
