package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

// HealthMonitor runs a background per-provider liveness probe,
// independent of the per-call retry policy (C6), and demotes a provider
// out of availability after repeated probe failures. Adapted from the
// teacher's llm.HealthMonitor, narrowed from its QPS-counter/health-score
// machinery down to the binary healthy/unhealthy signal
// getAvailability(spec §4.1) needs.
type HealthMonitor struct {
	mu             sync.RWMutex
	healthy        map[types.Provider]bool
	consecutiveErr map[types.Provider]int
	interval       time.Duration
	unhealthyAfter int
	logger         *zap.Logger
	cancel         context.CancelFunc
}

// NewHealthMonitor creates a monitor. Call Start to begin background
// probing; the zero value reports every provider healthy.
func NewHealthMonitor(logger *zap.Logger) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		healthy:        make(map[types.Provider]bool),
		consecutiveErr: make(map[types.Provider]int),
		interval:       30 * time.Second,
		unhealthyAfter: 3,
		logger:         logger.With(zap.String("component", "registry.health")),
	}
}

// Start launches the background probe loop for the given adapters, keyed
// by provider. Stop() cancels it.
func (m *HealthMonitor) Start(ctx context.Context, adapters map[types.Provider]stream.Adapter) {
	probeCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				m.probeAll(probeCtx, adapters)
			}
		}
	}()
}

// Stop halts background probing.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *HealthMonitor) probeAll(ctx context.Context, adapters map[types.Provider]stream.Adapter) {
	for p, adapter := range adapters {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := adapter.HealthCheck(checkCtx)
		cancel()

		m.mu.Lock()
		if err != nil {
			m.consecutiveErr[p]++
			if m.consecutiveErr[p] >= m.unhealthyAfter {
				m.healthy[p] = false
			}
			m.logger.Warn("provider health probe failed", zap.String("provider", string(p)), zap.Error(err), zap.Int("consecutive_failures", m.consecutiveErr[p]))
		} else {
			m.consecutiveErr[p] = 0
			m.healthy[p] = true
		}
		m.mu.Unlock()
	}
}

// IsHealthy reports the last known health state for a provider. Unknown
// providers (never probed) are reported healthy so a freshly started
// registry does not spuriously exclude every agent before the first
// probe cycle completes.
func (m *HealthMonitor) IsHealthy(p types.Provider) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	healthy, known := m.healthy[p]
	if !known {
		return true
	}
	return healthy
}
