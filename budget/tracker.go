// Package budget implements the cost and budget governor (C3): a
// per-session running-cost tracker plus a per-user daily aggregate cap
// backed by Redis, narrowed from the teacher's llm/budget.TokenBudgetManager
// down to the two windows the collaboration engine actually enforces —
// a session cap and a calendar-day cap — dropping the teacher's
// per-minute/per-hour throttle windows, which no SPEC_FULL.md component
// asks for.
package budget

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/types"
)

// SessionTracker wraps types.CostTracker with the mutex safety the teacher's
// TokenBudgetManager applies to its atomic counters, since a workflow
// phase may fan out concurrent provider calls that all report usage
// against the same session.
type SessionTracker struct {
	mu      sync.Mutex
	tracker *types.CostTracker
	logger  *zap.Logger
	counter *types.TiktokenCounter
}

// NewSessionTracker creates a tracker for one collaboration session.
func NewSessionTracker(sessionID string, capUSD float64, logger *zap.Logger) *SessionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionTracker{
		tracker: types.NewCostTracker(sessionID, capUSD),
		logger:  logger.With(zap.String("component", "budget"), zap.String("session_id", sessionID)),
		counter: types.NewTiktokenCounter(),
	}
}

// RecordUsage records a completed call's token usage and returns the
// incremental USD cost.
func (t *SessionTracker) RecordUsage(p types.Provider, inputTokens, outputTokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	cost := t.tracker.AddUsage(p, inputTokens, outputTokens)
	t.logger.Debug("usage recorded",
		zap.String("provider", string(p)),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
		zap.Float64("cost", cost),
		zap.Float64("total_spent", t.tracker.SpentUSD))
	return cost
}

// ShouldAbort reports whether the session has reached its cap. Checked
// after every provider call completes, per spec §4.3.
func (t *SessionTracker) ShouldAbort() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.ShouldAbort()
}

// Estimate projects the cost of calling providers with an assumed token
// size each, for the pre-flight check before a phase starts (spec §4.3
// "estimate()").
func (t *SessionTracker) Estimate(providers []types.Provider, assumedInputTokens, assumedOutputTokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.EstimateCost(providers, assumedInputTokens, assumedOutputTokens)
}

// EstimateText projects the cost of calling providers with the real
// tiktoken count of text as the input size, used for the pre-flight
// check once the user's prompt is known (spec §4.3), instead of the
// fixed DefaultAssumedInputTokens heuristic.
func (t *SessionTracker) EstimateText(providers []types.Provider, text string, assumedOutputTokens int) float64 {
	inputTokens := t.counter.CountTokens(text)
	if inputTokens == 0 {
		inputTokens = DefaultAssumedInputTokens
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.EstimateCost(providers, inputTokens, assumedOutputTokens)
}

// WouldExceed reports whether an estimated additional cost would reach
// the session cap, without recording it.
func (t *SessionTracker) WouldExceed(estimated float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.WouldExceed(estimated)
}

// Snapshot returns a copy of the tracker's current state, for the
// CollaborationResult payload and for progress_update events.
func (t *SessionTracker) Snapshot() types.CostTracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := *t.tracker
	snapshot.ByProvider = make(map[types.Provider]float64, len(t.tracker.ByProvider))
	for p, cost := range t.tracker.ByProvider {
		snapshot.ByProvider[p] = cost
	}
	return snapshot
}

// DefaultAssumedInputTokens and DefaultAssumedOutputTokens are the
// heuristic per-call sizes used for the pre-flight estimate when the
// actual prompt has not been assembled yet.
const (
	DefaultAssumedInputTokens  = 1500
	DefaultAssumedOutputTokens = 800
)
