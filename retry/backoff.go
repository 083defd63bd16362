// Package retry implements the retry & error policy (C6): classifies
// provider errors as retryable or fatal and executes the exponential
// backoff with jitter spec §4.6 names, generalized from the teacher's
// llm/retry/backoff.go.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/types"
)

// Policy configures the backoff schedule. The defaults match spec §4.6:
// up to two retries after the initial attempt, initial delay 1s doubling
// each attempt, ±20% jitter.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultPolicy returns the spec §4.6 retry schedule.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// OnRetry is invoked before each retry delay, used by callers to emit an
// agent_retry event (spec §4.6: "on each retry, emit agent_retry").
type OnRetry func(attempt int, err *types.Error, delay time.Duration)

// Call is one attempt's worth of work. It must return a *types.Error (or
// nil) so the policy can classify retryability; any other error type is
// treated as fatal.
type Call func(ctx context.Context, attempt int) error

// Do executes fn, retrying per policy on retryable errors. Each attempt
// gets a fresh context derived from newCallCtx — a *per-attempt* deadline,
// not the session deadline, per spec §4.6 ("a retry uses a fresh
// model-specific deadline; the session deadline is not reset"). phase and
// provider are stamped onto the returned error for diagnosis.
func Do(ctx context.Context, policy Policy, provider types.Provider, phase string, newCallCtx func(context.Context) (context.Context, context.CancelFunc), onRetry OnRetry, logger *zap.Logger, fn Call) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retry"), zap.String("provider", string(provider)), zap.String("phase", phase))

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		callCtx, cancel := newCallCtx(ctx)
		err := fn(callCtx, attempt)
		cancel()

		if err == nil {
			if attempt > 0 {
				logger.Info("call succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		structured := asStructuredError(err, provider, phase, attempt)
		lastErr = structured

		if !structured.Retryable || attempt >= policy.MaxRetries {
			return structured
		}

		delay := calculateDelay(policy, attempt+1)
		logger.Debug("retrying call", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(structured))
		if onRetry != nil {
			onRetry(attempt+1, structured, delay)
		}

		select {
		case <-ctx.Done():
			return asStructuredError(ctx.Err(), provider, phase, attempt+1)
		case <-time.After(delay):
		}
	}
	return lastErr
}

// calculateDelay computes delay = initial * multiplier^(attempt-1) *
// (1 ± jitter), per spec §4.6's literal formula.
func calculateDelay(p Policy, attempt int) time.Duration {
	base := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Jitter > 0 {
		spread := base * p.Jitter
		base += (rand.Float64()*2 - 1) * spread
	}
	if base < float64(p.InitialDelay) {
		base = float64(p.InitialDelay)
	}
	return time.Duration(base)
}

// asStructuredError normalizes any error into a *types.Error carrying
// provider/phase/attempt, classifying unrecognized errors as fatal
// (non-retryable) per spec §4.6's closed retryable list.
func asStructuredError(err error, provider types.Provider, phase string, attempt int) *types.Error {
	var te *types.Error
	if e, ok := err.(*types.Error); ok {
		te = e
	} else {
		te = &types.Error{
			Code:      types.ErrInternalInvariant,
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     err,
		}
	}
	te.Provider = string(provider)
	te.Phase = phase
	te.Attempt = attempt
	return te
}
