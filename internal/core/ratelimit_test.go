package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_AcquireClampsToCapacity(t *testing.T) {
	b := NewTokenBucket(5, 0, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, b.Acquire(ctx, 10))
	assert.Equal(t, float64(0), b.Available())
}

func TestTokenBucket_RefillsAfterInterval(t *testing.T) {
	b := NewTokenBucket(2, 2, 30*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, b.Acquire(ctx, 2))
	assert.Equal(t, float64(0), b.Available())

	start := time.Now()
	require.NoError(t, b.Acquire(ctx, 1))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTokenBucket_AcquireRespectsContextCancellation(t *testing.T) {
	b := NewTokenBucket(1, 1, time.Hour)

	ctx := context.Background()
	require.NoError(t, b.Acquire(ctx, 1))

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Acquire(cancelCtx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucket_DoesNotExceedCapacityAfterManyIntervals(t *testing.T) {
	b := NewTokenBucket(3, 1, time.Millisecond)
	fixed := time.Now()
	b.setClock(func() time.Time { return fixed })

	require.NoError(t, b.Acquire(context.Background(), 1))
	assert.Equal(t, float64(2), b.Available())

	b.setClock(func() time.Time { return fixed.Add(time.Hour) })
	assert.Equal(t, float64(3), b.Available(), "refill must clamp at capacity")
}
