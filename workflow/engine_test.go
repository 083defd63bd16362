package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/budget"
	"github.com/BaSui01/agentflow/concurrency"
	"github.com/BaSui01/agentflow/eventbus"
	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

type scriptedAdapter struct {
	provider types.Provider
	text     string
	err      error
}

func (a *scriptedAdapter) Provider() types.Provider { return a.provider }

func (a *scriptedAdapter) Stream(ctx context.Context, req stream.Request) (<-chan stream.TokenChunk, *stream.CompletionSummary, error) {
	if a.err != nil {
		return nil, nil, a.err
	}
	ch := make(chan stream.TokenChunk, 1)
	ch <- stream.TokenChunk{Text: a.text}
	close(ch)
	return ch, &stream.CompletionSummary{FinishReason: "stop"}, nil
}

func (a *scriptedAdapter) HealthCheck(ctx context.Context) error { return nil }

func newTestDeps(agents []AgentHandle) Dependencies {
	return Dependencies{
		Agents:    agents,
		Costs:     budget.NewSessionTracker("sess-1", 10.0, zap.NewNop()),
		Breakers:  concurrency.NewBreakerSet(concurrency.DefaultBreakerConfig(), zap.NewNop()),
		Slots:     concurrency.NewSlotManager(3),
		Deadlines: concurrency.NewDeadlineScope(context.Background(), time.Minute, 10*time.Second),
	}
}

func TestEngine_Run_IndividualModeConcatenatesResponses(t *testing.T) {
	e := New(eventbus.New(zap.NewNop()), zap.NewNop())
	agents := []AgentHandle{
		{Provider: types.ProviderClaude, ModelID: "m", Adapter: &scriptedAdapter{provider: types.ProviderClaude, text: "hello from claude"}},
		{Provider: types.ProviderGemini, ModelID: "m", Adapter: &scriptedAdapter{provider: types.ProviderGemini, text: "hello from gemini"}},
	}

	opts := types.CollaborationOptions{SessionID: "sess-1", Mode: types.ModeIndividual, Prompt: "what is go"}
	result := e.Run(context.Background(), opts, newTestDeps(agents))

	assert.Empty(t, result.AbortReason)
	assert.Contains(t, result.FinalAnswer, "hello from claude")
	assert.Contains(t, result.FinalAnswer, "hello from gemini")
	assert.Len(t, result.Artifacts, 2)
}

func TestEngine_Run_NoUsableAgentsAborts(t *testing.T) {
	e := New(eventbus.New(zap.NewNop()), zap.NewNop())
	opts := types.CollaborationOptions{SessionID: "sess-2", Mode: types.ModeIndividual, Prompt: "hi"}
	result := e.Run(context.Background(), opts, newTestDeps(nil))

	assert.Equal(t, "no agents", result.AbortReason)
}

func TestEngine_Run_UnknownModeAborts(t *testing.T) {
	e := New(eventbus.New(zap.NewNop()), zap.NewNop())
	agents := []AgentHandle{{Provider: types.ProviderClaude, Adapter: &scriptedAdapter{provider: types.ProviderClaude, text: "x"}}}
	opts := types.CollaborationOptions{SessionID: "sess-3", Mode: types.WorkflowMode("not_a_real_mode"), Prompt: "hi"}
	result := e.Run(context.Background(), opts, newTestDeps(agents))

	assert.Contains(t, result.AbortReason, "unknown mode")
}

func TestEngine_Run_OverBudgetAbortsBeforeAnyCall(t *testing.T) {
	e := New(eventbus.New(zap.NewNop()), zap.NewNop())
	adapter := &scriptedAdapter{provider: types.ProviderClaude, text: "should never run"}
	agents := []AgentHandle{{Provider: types.ProviderClaude, Adapter: adapter}}

	deps := newTestDeps(agents)
	deps.Costs = budget.NewSessionTracker("sess-4", 0.00000001, zap.NewNop())

	opts := types.CollaborationOptions{SessionID: "sess-4", Mode: types.ModeIndividual, Prompt: "a very long prompt to estimate a real cost against a tiny cap"}
	result := e.Run(context.Background(), opts, deps)

	assert.Equal(t, "over budget", result.AbortReason)
}

func TestEngine_Run_AgentFailurePlaceholdersInsteadOfAborting(t *testing.T) {
	e := New(eventbus.New(zap.NewNop()), zap.NewNop())
	agents := []AgentHandle{
		{Provider: types.ProviderClaude, Adapter: &scriptedAdapter{provider: types.ProviderClaude, err: errors.New("boom")}},
	}
	opts := types.CollaborationOptions{SessionID: "sess-5", Mode: types.ModeIndividual, Prompt: "hi"}
	result := e.Run(context.Background(), opts, newTestDeps(agents))

	assert.Empty(t, result.AbortReason)
	assert.Contains(t, result.FinalAnswer, "unable to provide")
}

func TestLargestContextAgent_PicksBiggestWindow(t *testing.T) {
	best := largestContextAgent([]types.Provider{types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT})
	assert.Equal(t, types.ProviderGemini, best)
}

func TestLargestContextAgent_TiesBreakOnEnumerationOrder(t *testing.T) {
	best := largestContextAgent([]types.Provider{types.ProviderGrok, types.ProviderChatGPT, types.ProviderLlama})
	assert.Equal(t, types.ProviderChatGPT, best)
}

func TestLargestContextAgent_EmptyCandidatesReturnsEmpty(t *testing.T) {
	assert.Equal(t, types.Provider(""), largestContextAgent(nil))
}

func TestExtractVote_PrefersMentionNearVoteKeyword(t *testing.T) {
	text := "gemini said something completely irrelevant and very long placeholder filler that pushes the distance well beyond fifty characters for sure. I vote chatgpt."
	vote := extractVote(text, []types.Provider{types.ProviderGemini, types.ProviderChatGPT}, types.ProviderClaude)
	assert.Equal(t, string(types.ProviderChatGPT), vote)
}

func TestExtractVote_FallsBackToFirstMentionedCandidate(t *testing.T) {
	text := "gemini raised an interesting idea, chatgpt elaborated on it."
	vote := extractVote(text, []types.Provider{types.ProviderGemini, types.ProviderChatGPT}, types.ProviderClaude)
	assert.Equal(t, string(types.ProviderGemini), vote)
}

func TestExtractVote_ExcludesSelf(t *testing.T) {
	text := "claude gave a thorough answer."
	vote := extractVote(text, []types.Provider{types.ProviderClaude}, types.ProviderClaude)
	assert.Equal(t, "", vote)
}

func TestExtractVote_NoMentionReturnsEmpty(t *testing.T) {
	vote := extractVote("no candidates named here", []types.Provider{types.ProviderGrok}, types.ProviderClaude)
	assert.Equal(t, "", vote)
}

func TestAbortResult_DefaultsFinalAnswerFromReason(t *testing.T) {
	opts := types.CollaborationOptions{SessionID: "s", Mode: types.ModeIndividual}
	result := abortResult(opts, "no agents", "")
	assert.Equal(t, "Collaboration aborted: no agents.", result.FinalAnswer)
	assert.Equal(t, "no agents", result.AbortReason)
}

func TestNewAgentHandle_SetsAllFields(t *testing.T) {
	adapter := &scriptedAdapter{provider: types.ProviderLlama}
	h := NewAgentHandle(types.ProviderLlama, "llama-3.3-70b", adapter)
	require.Equal(t, types.ProviderLlama, h.Provider)
	assert.Equal(t, "llama-3.3-70b", h.ModelID)
	assert.Same(t, adapter, h.Adapter)
}
