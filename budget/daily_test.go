package budget

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestDailyAggregate(t *testing.T) (*miniredis.Miniredis, *DailyAggregate) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewDailyAggregate(client, zap.NewNop())
}

func TestDailyAggregate_AddAccumulates(t *testing.T) {
	t.Parallel()

	mr, agg := setupTestDailyAggregate(t)
	defer mr.Close()
	ctx := context.Background()

	total, err := agg.Add(ctx, "user-1", 1.25)
	require.NoError(t, err)
	assert.Equal(t, 1.25, total)

	total, err = agg.Add(ctx, "user-1", 0.75)
	require.NoError(t, err)
	assert.Equal(t, 2.00, total)
}

func TestDailyAggregate_CurrentSpendDefaultsToZero(t *testing.T) {
	t.Parallel()

	mr, agg := setupTestDailyAggregate(t)
	defer mr.Close()
	ctx := context.Background()

	spend, err := agg.CurrentSpend(ctx, "never-spent")
	require.NoError(t, err)
	assert.Equal(t, 0.0, spend)
}

func TestDailyAggregate_CurrentSpendReflectsAdds(t *testing.T) {
	t.Parallel()

	mr, agg := setupTestDailyAggregate(t)
	defer mr.Close()
	ctx := context.Background()

	_, err := agg.Add(ctx, "user-2", 3.50)
	require.NoError(t, err)

	spend, err := agg.CurrentSpend(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 3.50, spend)
}

func TestDailyAggregate_EnforceLimit(t *testing.T) {
	t.Parallel()

	mr, agg := setupTestDailyAggregate(t)
	defer mr.Close()
	ctx := context.Background()

	_, err := agg.Add(ctx, "user-3", 18.00)
	require.NoError(t, err)

	exceeded, err := agg.EnforceLimit(ctx, "user-3", 20.00, 1.00)
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = agg.EnforceLimit(ctx, "user-3", 20.00, 3.00)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestDailyAggregate_EnforceLimitZeroCapNeverTrips(t *testing.T) {
	t.Parallel()

	mr, agg := setupTestDailyAggregate(t)
	defer mr.Close()
	ctx := context.Background()

	exceeded, err := agg.EnforceLimit(ctx, "user-4", 0, 1000.00)
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestDailyAggregate_KeyExpires(t *testing.T) {
	t.Parallel()

	mr, agg := setupTestDailyAggregate(t)
	defer mr.Close()
	ctx := context.Background()

	_, err := agg.Add(ctx, "user-5", 1.00)
	require.NoError(t, err)

	key := dayKey("user-5", time.Now())
	ttl := mr.TTL(key)
	assert.Greater(t, ttl.Hours(), 0.0)
	assert.LessOrEqual(t, ttl.Hours(), 48.0)
}
