package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireExclusive(t *testing.T) {
	l := NewLocker(nil)
	ctx := context.Background()

	token, ok, err := l.TryAcquire(ctx, "invoice:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "invoice:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second caller must not get the lease")

	// A different invoice is unaffected.
	_, ok, err = l.TryAcquire(ctx, "invoice:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, "invoice:1", token))
	_, ok, err = l.TryAcquire(ctx, "invoice:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lease is reusable after release")
}

func TestExpiredLeaseIsReclaimable(t *testing.T) {
	l := NewLocker(nil)
	ctx := context.Background()

	_, ok, err := l.TryAcquire(ctx, "invoice:9", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	// The holder crashed; expiry reclaims the invoice.
	_, ok, err = l.TryAcquire(ctx, "invoice:9", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseWithWrongTokenIsNoop(t *testing.T) {
	l := NewLocker(nil)
	ctx := context.Background()

	_, ok, err := l.TryAcquire(ctx, "invoice:5", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "invoice:5", "not-the-token"))

	_, ok, err = l.TryAcquire(ctx, "invoice:5", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "wrong token must not free the lease")
}

func TestAcquireValidation(t *testing.T) {
	l := NewLocker(nil)
	_, _, err := l.TryAcquire(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, _, err = l.TryAcquire(context.Background(), "k", 0)
	assert.Error(t, err)
}
