package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	limiter := NewSlidingWindow(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := NewSlidingWindow(1, time.Minute)
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	blocked, err := limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	other, err := limiter.Allow(ctx, "globex")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestAllowNCost(t *testing.T) {
	limiter := NewSlidingWindow(10, time.Minute)
	ctx := context.Background()

	result, err := limiter.AllowN(ctx, "acme", 8)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)

	result, err = limiter.AllowN(ctx, "acme", 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestWindowSlides(t *testing.T) {
	limiter := NewSlidingWindow(1, 20*time.Millisecond)
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	time.Sleep(30 * time.Millisecond)

	result, err = limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestReset(t *testing.T) {
	limiter := NewSlidingWindow(1, time.Minute)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "acme")
	require.NoError(t, err)

	limiter.Reset("acme")

	result, err := limiter.Allow(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
