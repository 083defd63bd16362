package concurrency

import (
	"context"
	"time"
)

// DefaultSessionDeadline and DefaultPerCallDeadline are the fallback
// budgets applied when CollaborationOptions does not specify one,
// grounded on internal/server.Manager's shutdown-timeout-with-sane-
// default pattern.
const (
	DefaultSessionDeadline = 5 * time.Minute
	DefaultPerCallDeadline = 45 * time.Second
)

// DeadlineScope derives the session-root controller once per
// collaboration, then a fresh per-call child for every provider call.
// The per-call child's deadline is min(remaining session time, the
// provider's default), so a call started late in a long-running session
// never gets more time than is actually left.
type DeadlineScope struct {
	sessionCtx     context.Context
	sessionCancel  context.CancelFunc
	sessionDefault time.Duration
	perCallDefault time.Duration
}

// NewDeadlineScope derives the session-root context from parent with the
// given total session budget.
func NewDeadlineScope(parent context.Context, sessionDeadline, perCallDeadline time.Duration) *DeadlineScope {
	if sessionDeadline <= 0 {
		sessionDeadline = DefaultSessionDeadline
	}
	if perCallDeadline <= 0 {
		perCallDeadline = DefaultPerCallDeadline
	}
	ctx, cancel := context.WithTimeout(parent, sessionDeadline)
	return &DeadlineScope{
		sessionCtx:     ctx,
		sessionCancel:  cancel,
		sessionDefault: sessionDeadline,
		perCallDefault: perCallDeadline,
	}
}

// SessionContext returns the session-root context, cancelled when the
// session deadline elapses or Cancel is called (e.g. on
// cancel_collaboration, spec §6).
func (s *DeadlineScope) SessionContext() context.Context { return s.sessionCtx }

// Cancel ends the session scope immediately, cancelling every derived
// per-call context that has not already completed.
func (s *DeadlineScope) Cancel() { s.sessionCancel() }

// NewCall derives a fresh per-call child context bounded by
// min(remaining session time, perCallDefault). A failing call's context
// cancellation does not propagate to siblings: each NewCall is
// independently derived from the session root, not chained from the
// previous call.
func (s *DeadlineScope) NewCall() (context.Context, context.CancelFunc) {
	remaining := time.Until(deadlineOf(s.sessionCtx))
	budget := s.perCallDefault
	if remaining > 0 && remaining < budget {
		budget = remaining
	}
	return context.WithTimeout(s.sessionCtx, budget)
}

func deadlineOf(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(24 * time.Hour)
}
