package proxied

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsBurstUpToCapacity(t *testing.T) {
	tb := newTokenBucket(3, 1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Wait(ctx))
	}
}

func TestTokenBucketBlocksUntilRefill(t *testing.T) {
	tb := newTokenBucket(1, 10) // 1 capacity, refills 10/sec -> ~100ms per token
	ctx := context.Background()
	require.NoError(t, tb.Wait(ctx))

	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTokenBucketRespectsContextCancellation(t *testing.T) {
	tb := newTokenBucket(1, 0.001)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, tb.Wait(ctx))
	err := tb.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
