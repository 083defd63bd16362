package ctxstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/types"
)

func TestStore_AddUserMessage_UpdatesContextSize(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	sig := s.AddUserMessage("sess-1", "hello there, how are you today?")

	c := s.GetOrCreate("sess-1")
	assert.Len(t, c.Messages, 1)
	assert.Greater(t, c.ContextSize, 0)
	assert.False(t, sig.IsNearLimit)
}

func TestStore_AddAssistantResponse_RecordsProviderTurn(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.AddAssistantResponse("sess-2", types.ProviderClaude, "here is my answer")

	c := s.GetOrCreate("sess-2")
	require.Len(t, c.Messages, 1)
	assert.Equal(t, types.RoleAssistant, c.Messages[0].Role)
}

func TestStore_Reset_ClearsHistory(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.AddUserMessage("sess-3", "first message")
	s.AddUserMessage("sess-3", "second message")

	s.Reset("sess-3")

	c := s.GetOrCreate("sess-3")
	assert.Empty(t, c.Messages)
	assert.Equal(t, 0, c.ContextSize)
}

func TestStore_Trim_RemovesOldestUntilUnderTarget(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.SetMaxSize("sess-4", 1000)

	filler := strings.Repeat("word ", 400)
	for i := 0; i < 5; i++ {
		s.AddUserMessage("sess-4", filler)
	}

	c := s.GetOrCreate("sess-4")
	assert.LessOrEqual(t, c.ContextSize, c.MaxContextSize)
}

func TestStore_SetMaxSize_ClampsBelowMinimum(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.SetMaxSize("sess-5", 10)

	c := s.GetOrCreate("sess-5")
	assert.Equal(t, 1000, c.MaxContextSize)
}

func TestStore_NearLimitSignal_TripsAtEightyPercent(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.SetMaxSize("sess-6", 100)

	var sig NearLimitSignal
	for i := 0; i < 20 && !sig.IsNearLimit; i++ {
		sig = s.AddUserMessage("sess-6", "padding text to grow the context size steadily")
	}
	assert.True(t, sig.IsNearLimit)
	assert.GreaterOrEqual(t, sig.PercentUsed, 80.0)
}

func TestStore_FormatForPrompt_NoneModeIsEmpty(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.AddUserMessage("sess-7", "hello")
	s.SetMode("sess-7", types.ContextModeNone)

	assert.Equal(t, "", s.FormatForPrompt("sess-7"))
}

func TestStore_FormatForPrompt_FullModeIncludesAllMessages(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.AddUserMessage("sess-8", "question one")
	s.AddAssistantResponse("sess-8", types.ProviderGemini, "answer one")

	out := s.FormatForPrompt("sess-8")
	assert.Contains(t, out, "question one")
	assert.Contains(t, out, "answer one")
}

func TestStore_FormatForPrompt_SummaryModeCondensesOlderMessages(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	s.SetMode("sess-9", types.ContextModeSummary)
	for i := 0; i < 10; i++ {
		s.AddUserMessage("sess-9", "a turn in the conversation that keeps going on.")
	}

	out := s.FormatForPrompt("sess-9")
	assert.Contains(t, out, "summary of")
}

func TestStore_GetOrCreate_IsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(nil, zap.NewNop())
	first := s.GetOrCreate("sess-10")
	second := s.GetOrCreate("sess-10")
	assert.Same(t, first, second)
}
