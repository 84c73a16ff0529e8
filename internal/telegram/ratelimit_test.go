package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_FirstRequestImmediate(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_Throttles(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	// burst of one, then two 100ms gaps
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimiter_ContextCanceled(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx))
}

func TestRateLimiter_FloodWaitBlocks(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)
	rl.SetFloodWait(1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}

func TestRateLimiter_FloodWaitNeverShrinks(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)
	rl.SetFloodWait(30)
	rl.SetFloodWait(1)

	assert.Greater(t, rl.floodWaitRemaining(), 20*time.Second)
}

func TestRateLimiter_ExpiredFloodWait(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)
	rl.floodWaitUntil = time.Now().Add(-100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
