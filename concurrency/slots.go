package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentflow/types"
)

// DefaultSlotsPerProvider is the per-provider concurrency ceiling (Open
// Question decision #2, SPEC_FULL.md §8): exposed as a variable rather
// than a constant so config can tighten it without a code change.
var DefaultSlotsPerProvider int64 = 3

// DefaultRequestsPerSecond bounds the outbound call rate to a single
// provider ahead of the concurrency slot, independent of how many slots
// are configured — a burst of session starts should not all dial a
// provider in the same instant even if slots would allow it.
var DefaultRequestsPerSecond rate.Limit = 5

// DefaultRateBurst is the token bucket burst size paired with
// DefaultRequestsPerSecond.
const DefaultRateBurst = 3

// SlotManager bounds the number of concurrent in-flight calls to each
// provider, independent of any other provider's load, via one
// golang.org/x/sync/semaphore.Weighted per provider — the same
// concurrency primitive family the teacher's go.mod already carries —
// plus a golang.org/x/time/rate.Limiter per provider ahead of the
// semaphore, adapted from the teacher's cmd/agentflow/middleware.go
// per-visitor rate limiter.
type SlotManager struct {
	slots   map[types.Provider]*semaphore.Weighted
	limiter map[types.Provider]*rate.Limiter
}

// NewSlotManager creates a slot manager with slotsPerProvider concurrency
// slots for every known provider.
func NewSlotManager(slotsPerProvider int64) *SlotManager {
	if slotsPerProvider <= 0 {
		slotsPerProvider = DefaultSlotsPerProvider
	}
	slots := make(map[types.Provider]*semaphore.Weighted, len(types.AllProviders))
	limiter := make(map[types.Provider]*rate.Limiter, len(types.AllProviders))
	for _, p := range types.AllProviders {
		slots[p] = semaphore.NewWeighted(slotsPerProvider)
		limiter[p] = rate.NewLimiter(DefaultRequestsPerSecond, DefaultRateBurst)
	}
	return &SlotManager{slots: slots, limiter: limiter}
}

// Acquire waits for the provider's rate limiter to admit the call, then
// blocks (FIFO, per semaphore.Weighted's internal waiter queue) until a
// slot for p is free or ctx is done. The caller must call the returned
// release func exactly once, unconditionally, including on the error path.
func (m *SlotManager) Acquire(ctx context.Context, p types.Provider) (release func(), err error) {
	lim, ok := m.limiter[p]
	if !ok {
		lim = rate.NewLimiter(DefaultRequestsPerSecond, DefaultRateBurst)
		m.limiter[p] = lim
	}
	if err := lim.Wait(ctx); err != nil {
		return func() {}, err
	}

	sem, ok := m.slots[p]
	if !ok {
		sem = semaphore.NewWeighted(DefaultSlotsPerProvider)
		m.slots[p] = sem
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	return func() { sem.Release(1) }, nil
}
