package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentflow/types"
)

func TestSlotManager_AcquireAndRelease(t *testing.T) {
	t.Parallel()

	m := NewSlotManager(1)
	ctx := context.Background()

	release, err := m.Acquire(ctx, types.ProviderClaude)
	require.NoError(t, err)
	release()
}

func TestSlotManager_BlocksWhenSlotsExhausted(t *testing.T) {
	t.Parallel()

	m := NewSlotManager(1)
	ctx := context.Background()

	release, err := m.Acquire(ctx, types.ProviderGemini)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(shortCtx, types.ProviderGemini)
	assert.Error(t, err, "second acquire should time out while the only slot is held")

	release()
	release2, err := m.Acquire(ctx, types.ProviderGemini)
	require.NoError(t, err)
	release2()
}

func TestSlotManager_ProvidersAreIndependent(t *testing.T) {
	t.Parallel()

	m := NewSlotManager(1)
	ctx := context.Background()

	releaseClaude, err := m.Acquire(ctx, types.ProviderClaude)
	require.NoError(t, err)
	defer releaseClaude()

	releaseGemini, err := m.Acquire(ctx, types.ProviderGemini)
	require.NoError(t, err, "a held slot for one provider must not block another provider")
	releaseGemini()
}

func TestSlotManager_RateLimiterThrottlesBursts(t *testing.T) {
	t.Parallel()

	m := NewSlotManager(DefaultSlotsPerProvider)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < int(DefaultRateBurst)+2; i++ {
		release, err := m.Acquire(ctx, types.ProviderChatGPT)
		require.NoError(t, err)
		release()
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "calls beyond the burst size must wait on the rate limiter")
}
