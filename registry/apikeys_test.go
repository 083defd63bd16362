package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentflow/types"
)

func TestKeyStore_ResolveStoredKey(t *testing.T) {
	t.Parallel()

	s := NewKeyStore()
	s.SetKey("user-1", types.ProviderClaude, "sk-stored")

	key, err := s.Resolve("user-1", types.ProviderClaude)
	require.NoError(t, err)
	assert.Equal(t, "sk-stored", key)
}

func TestKeyStore_ResolveFallsBackToEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	s := NewKeyStore()
	key, err := s.Resolve("user-2", types.ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestKeyStore_StoredKeyTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	s := NewKeyStore()
	s.SetKey("user-3", types.ProviderChatGPT, "stored-key")

	key, err := s.Resolve("user-3", types.ProviderChatGPT)
	require.NoError(t, err)
	assert.Equal(t, "stored-key", key)
}

func TestKeyStore_ResolveErrorsWithoutAnyKey(t *testing.T) {
	os.Unsetenv("GROK_API_KEY")

	s := NewKeyStore()
	_, err := s.Resolve("user-4", types.ProviderGrok)
	assert.Error(t, err)
	var notFound *ErrNoAPIKey
	assert.ErrorAs(t, err, &notFound)
}

func TestKeyStore_ClearKeysRemovesStoredKeys(t *testing.T) {
	os.Unsetenv("DEEPSEEK_API_KEY")

	s := NewKeyStore()
	s.SetKey("user-5", types.ProviderDeepSeek, "stored")
	s.ClearKeys("user-5")

	_, err := s.Resolve("user-5", types.ProviderDeepSeek)
	assert.Error(t, err)
}

func TestKeyStore_Available(t *testing.T) {
	os.Unsetenv("LLAMA_API_KEY")

	s := NewKeyStore()
	assert.False(t, s.Available("user-6", types.ProviderLlama))

	s.SetKey("user-6", types.ProviderLlama, "k")
	assert.True(t, s.Available("user-6", types.ProviderLlama))
}

func TestKeyStore_BlankStoredKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "env-fallback")

	s := NewKeyStore()
	s.SetKey("user-7", types.ProviderClaude, "   ")

	key, err := s.Resolve("user-7", types.ProviderClaude)
	require.NoError(t, err)
	assert.Equal(t, "env-fallback", key)
}
