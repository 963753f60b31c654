package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackConsumeAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l, err := New(ctx, "", 3, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := l.Consume(ctx, "client-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Consume(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterMs, int64(0))
}

func TestFallbackConsumeResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	l, err := New(ctx, "", 1, 10*time.Millisecond)
	require.NoError(t, err)

	res, err := l.Consume(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Consume(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(20 * time.Millisecond)
	res, err = l.Consume(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFallbackConsumeIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	l, err := New(ctx, "", 1, time.Minute)
	require.NoError(t, err)

	res1, err := l.Consume(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res1.Allowed)

	res2, err := l.Consume(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res2.Allowed)
}
