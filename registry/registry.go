// Package registry implements the provider client registry (C1): a
// per-(userId, provider) cache of stream.Adapter instances, so every call
// within a collaboration reuses the same HTTP client and connection pool
// instead of constructing one per request.
package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

type clientKey struct {
	userID   string
	provider types.Provider
}

// Registry is a thread-safe cache of provider clients, adapted from the
// teacher's llm.ProviderRegistry (sorted map + RWMutex), generalized to
// key on (userId, provider) since each user supplies their own API keys
// (spec §4.1) rather than the teacher's single process-wide provider set.
type Registry struct {
	mu      sync.RWMutex
	clients map[clientKey]stream.Adapter
	keys    *KeyStore
	health  *HealthMonitor
	logger  *zap.Logger
}

// New creates an empty Registry backed by the given key store.
func New(keys *KeyStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clients: make(map[clientKey]stream.Adapter),
		keys:    keys,
		logger:  logger.With(zap.String("component", "registry")),
	}
}

// SetHealthMonitor attaches a background health monitor whose probe
// results gate GetOrCreate and Available: a provider demoted to
// unhealthy is treated as unavailable until probing reports it recovered.
func (r *Registry) SetHealthMonitor(m *HealthMonitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = m
}

// Available reports whether (userID, provider) has both a usable API key
// and, if a health monitor is attached, a currently healthy probe result
// (spec §4.1's getAvailability, extended by the health monitor's liveness
// signal).
func (r *Registry) Available(userID string, p types.Provider) bool {
	if !r.keys.Available(userID, p) {
		return false
	}
	r.mu.RLock()
	health := r.health
	r.mu.RUnlock()
	return health == nil || health.IsHealthy(p)
}

// Factory constructs a new stream.Adapter for a provider given a resolved
// API key. Supplied by the caller wiring the registry at startup so this
// package does not need to import every concrete providers.* constructor.
type Factory func(p types.Provider, apiKey string) (stream.Adapter, error)

// GetOrCreate returns the cached adapter for (userID, provider), creating
// and caching one via factory on first use. Concurrent callers for the
// same key may race to create duplicate clients briefly; the second one
// to finish wins and is what subsequent callers reuse — acceptable since
// providers.* adapters are stateless HTTP clients.
func (r *Registry) GetOrCreate(userID string, p types.Provider, factory Factory) (stream.Adapter, error) {
	key := clientKey{userID: userID, provider: p}

	r.mu.RLock()
	client, cached := r.clients[key]
	health := r.health
	r.mu.RUnlock()
	if health != nil && !health.IsHealthy(p) {
		return nil, fmt.Errorf("provider %s failing health probes", p)
	}
	if cached {
		return client, nil
	}

	apiKey, err := r.keys.Resolve(userID, p)
	if err != nil {
		return nil, fmt.Errorf("resolve api key for %s/%s: %w", userID, p, err)
	}

	client, err = factory(p, apiKey)
	if err != nil {
		return nil, fmt.Errorf("construct client for %s/%s: %w", userID, p, err)
	}

	r.mu.Lock()
	r.clients[key] = client
	r.mu.Unlock()

	r.logger.Debug("client created", zap.String("user_id", userID), zap.String("provider", string(p)))
	return client, nil
}

// Invalidate purges every cached client for a user, e.g. after their
// stored API keys change, forcing the next GetOrCreate to rebuild with
// fresh credentials.
func (r *Registry) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.clients {
		if key.userID == userID {
			delete(r.clients, key)
		}
	}
	r.logger.Debug("client cache invalidated", zap.String("user_id", userID))
}

// Len reports the number of cached clients, for tests and metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
