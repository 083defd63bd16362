package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DailyAggregate tracks per-user daily spend across all sessions via a
// Redis key `dailycost:<userId>:<calendarDay-UTC>`, compare-and-added
// with INCRBYFLOAT so concurrent sessions for the same user cannot race
// past the cap, grounded on the teacher's day-window reset logic in
// llm/budget/token_budget.go (TokenBudgetManager.dayStart /
// resetWindowsIfNeeded), generalized from a process-local atomic counter
// to a Redis-backed one since daily spend must be enforced across every
// process serving that user, not just the one holding the session.
type DailyAggregate struct {
	client *redis.Client
	logger *zap.Logger
}

// NewDailyAggregate creates a daily aggregate tracker.
func NewDailyAggregate(client *redis.Client, logger *zap.Logger) *DailyAggregate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyAggregate{client: client, logger: logger.With(zap.String("component", "budget.daily"))}
}

func dayKey(userID string, at time.Time) string {
	return fmt.Sprintf("dailycost:%s:%s", userID, at.UTC().Format("2006-01-02"))
}

// Add increments the user's running daily spend and returns the new
// total. The key expires after 48h so stale days don't accumulate
// forever.
func (d *DailyAggregate) Add(ctx context.Context, userID string, deltaUSD float64) (float64, error) {
	key := dayKey(userID, time.Now())
	total, err := d.client.IncrByFloat(ctx, key, deltaUSD).Result()
	if err != nil {
		return 0, fmt.Errorf("incrbyfloat %s: %w", key, err)
	}
	d.client.Expire(ctx, key, 48*time.Hour)
	return total, nil
}

// CurrentSpend returns the user's running daily spend without modifying it.
func (d *DailyAggregate) CurrentSpend(ctx context.Context, userID string) (float64, error) {
	key := dayKey(userID, time.Now())
	val, err := d.client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// EnforceLimit reports whether adding delta to the user's current daily
// spend would reach or exceed dailyCapUSD, without committing the add.
// Call this before a phase's pre-flight estimate is added via Add.
func (d *DailyAggregate) EnforceLimit(ctx context.Context, userID string, dailyCapUSD, delta float64) (bool, error) {
	if dailyCapUSD <= 0 {
		return false, nil
	}
	current, err := d.CurrentSpend(ctx, userID)
	if err != nil {
		return false, err
	}
	return current+delta >= dailyCapUSD, nil
}
