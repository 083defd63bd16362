// Package concurrency implements the concurrency & deadline manager (C4):
// per-provider semaphore slots, cascading session/call deadlines, and a
// per-session circuit breaker.
package concurrency

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/types"
)

// BreakerState mirrors the classic closed/open/half-open circuit states.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures one provider's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig matches the per-session-fatal-error-budget the
// collaboration engine uses (spec §7 supplemented feature): three
// consecutive fatal errors trip the breaker, and after 30 seconds it goes
// half-open and lets one probe call through.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}
}

// Breaker is a single provider's circuit breaker, adapted from the
// teacher's workflow.CircuitBreaker (generalized over arbitrary node
// IDs) narrowed to the per-session, per-provider scope spec §7 asks for:
// trips after N consecutive fatal errors from one provider within a
// session, short-circuiting further calls to that provider without
// counting against the ignoreFailingModels retry budget.
type Breaker struct {
	mu              sync.Mutex
	provider        types.Provider
	cfg             BreakerConfig
	state           BreakerState
	failures        int
	lastFailureTime time.Time
	logger          *zap.Logger
}

// NewBreaker creates a breaker for one provider within one session.
func NewBreaker(p types.Provider, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		provider: p,
		cfg:      cfg,
		state:    BreakerClosed,
		logger:   logger.With(zap.String("component", "concurrency.breaker"), zap.String("provider", string(p))),
	}
}

// Allow reports whether a call to this provider may proceed.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true, nil
	case BreakerOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.state = BreakerHalfOpen
			return true, nil
		}
		return false, fmt.Errorf("circuit breaker open for %s: %d consecutive failures", b.provider, b.failures)
	case BreakerHalfOpen:
		return true, nil
	default:
		return false, fmt.Errorf("unknown breaker state for %s", b.provider)
	}
}

// RecordSuccess resets the failure count and closes the breaker if it
// was probing in half-open state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.logger.Info("circuit breaker closed after successful probe")
		b.state = BreakerClosed
	}
}

// RecordFailure records a fatal (non-retryable, or retry-budget-
// exhausted) call failure, tripping the breaker once FailureThreshold
// consecutive failures accumulate.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailureTime = time.Now()

	if b.state == BreakerHalfOpen {
		b.logger.Warn("circuit breaker re-opened after failed probe")
		b.state = BreakerOpen
		return
	}
	if b.failures >= b.cfg.FailureThreshold {
		b.logger.Warn("circuit breaker opened", zap.Int("consecutive_failures", b.failures))
		b.state = BreakerOpen
		metrics.RecordBreakerTrip(string(b.provider))
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSet manages one Breaker per provider for a single session.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[types.Provider]*Breaker
	cfg      BreakerConfig
	logger   *zap.Logger
}

// NewBreakerSet creates an empty set scoped to one collaboration session.
func NewBreakerSet(cfg BreakerConfig, logger *zap.Logger) *BreakerSet {
	return &BreakerSet{breakers: make(map[types.Provider]*Breaker), cfg: cfg, logger: logger}
}

// For returns (creating if needed) the breaker for a provider.
func (s *BreakerSet) For(p types.Provider) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[p]; ok {
		return b
	}
	b := NewBreaker(p, s.cfg, s.logger)
	s.breakers[p] = b
	return b
}
