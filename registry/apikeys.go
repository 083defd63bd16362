package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BaSui01/agentflow/types"
)

// envVarFor maps a provider to the environment variable the config layer
// recognizes as its fallback API key (spec §6 "provider credential
// precedence").
var envVarFor = map[types.Provider]string{
	types.ProviderClaude:   "CLAUDE_API_KEY",
	types.ProviderGemini:   "GEMINI_API_KEY",
	types.ProviderChatGPT:  "OPENAI_API_KEY",
	types.ProviderGrok:     "GROK_API_KEY",
	types.ProviderDeepSeek: "DEEPSEEK_API_KEY",
	types.ProviderLlama:    "LLAMA_API_KEY",
}

// ErrNoAPIKey is returned when neither a per-user stored key nor an
// environment fallback is available for a provider.
type ErrNoAPIKey struct {
	UserID   string
	Provider types.Provider
}

func (e *ErrNoAPIKey) Error() string {
	return fmt.Sprintf("no api key available for user %s provider %s", e.UserID, e.Provider)
}

// KeyStore resolves per-user API keys, narrowed from the teacher's
// APIKeyPool (which round-robins a weighted pool of keys per provider)
// down to the "one stored key per (user, provider), environment
// fallback" shape the collaboration engine actually needs: nothing here
// calls for multiple keys per provider per user.
type KeyStore struct {
	mu      sync.RWMutex
	storedKeys map[string]map[types.Provider]string // userID -> provider -> key
}

// NewKeyStore creates an empty key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{storedKeys: make(map[string]map[types.Provider]string)}
}

// SetKey stores a per-user API key for a provider, overwriting any
// previous value.
func (s *KeyStore) SetKey(userID string, p types.Provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storedKeys[userID] == nil {
		s.storedKeys[userID] = make(map[types.Provider]string)
	}
	s.storedKeys[userID][p] = key
}

// ClearKeys removes all stored keys for a user.
func (s *KeyStore) ClearKeys(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storedKeys, userID)
}

// Resolve returns the API key to use for (userID, provider): the user's
// stored key if set, else the provider's environment variable, else
// ErrNoAPIKey.
func (s *KeyStore) Resolve(userID string, p types.Provider) (string, error) {
	s.mu.RLock()
	if byProvider, ok := s.storedKeys[userID]; ok {
		if key, ok := byProvider[p]; ok && strings.TrimSpace(key) != "" {
			s.mu.RUnlock()
			return key, nil
		}
	}
	s.mu.RUnlock()

	if envVar, ok := envVarFor[p]; ok {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return key, nil
		}
	}
	return "", &ErrNoAPIKey{UserID: userID, Provider: p}
}

// Available reports whether a usable key exists for (userID, provider)
// without returning it — used by the session gateway (C10) to filter
// agents by key availability before starting a collaboration.
func (s *KeyStore) Available(userID string, p types.Provider) bool {
	_, err := s.Resolve(userID, p)
	return err == nil
}
