package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/eventbus"
	"github.com/BaSui01/agentflow/types"
)

func scriptedAgents(providers ...types.Provider) []AgentHandle {
	agents := make([]AgentHandle, len(providers))
	for i, p := range providers {
		agents[i] = AgentHandle{
			Provider: p,
			ModelID:  "test-model",
			Adapter:  &scriptedAdapter{provider: p, text: "a reasonable contribution from " + string(p)},
		}
	}
	return agents
}

func runMode(t *testing.T, mode types.WorkflowMode, providers ...types.Provider) types.CollaborationResult {
	t.Helper()
	e := New(eventbus.New(zap.NewNop()), zap.NewNop())
	opts := types.CollaborationOptions{SessionID: "sess-" + string(mode), Mode: mode, Prompt: "how should we approach this problem"}
	return e.Run(context.Background(), opts, newTestDeps(scriptedAgents(providers...)))
}

func TestRunSequentialCritiqueChain_SynthesizesAcrossTheChain(t *testing.T) {
	result := runMode(t, types.ModeSequentialCritiqueChain, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.NotEmpty(t, result.FinalAnswer)
	assert.Equal(t, types.ProviderGemini, result.Synthesizer, "gemini has the largest context window among the three")
	assert.NotEmpty(t, result.Artifacts)
}

func TestRunValidatedConsensus_RequiresAtLeastThreeAgents(t *testing.T) {
	result := runMode(t, types.ModeValidatedConsensus, types.ProviderClaude, types.ProviderGemini)
	assert.Contains(t, result.AbortReason, "at least 3 agents")
}

func TestRunValidatedConsensus_MergesAndVerifiesWithThreeAgents(t *testing.T) {
	result := runMode(t, types.ModeValidatedConsensus, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.NotEmpty(t, result.FinalAnswer)
	assert.NotEmpty(t, result.Artifacts)
}

func TestRunCreativeBrainstormSwarm_AmplifiesAWinningIdea(t *testing.T) {
	result := runMode(t, types.ModeCreativeBrainstormSwarm, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.NotEmpty(t, result.FinalAnswer)
	var phases []string
	for _, a := range result.Artifacts {
		phases = append(phases, a.Phase)
	}
	assert.Contains(t, phases, "ideation")
	assert.Contains(t, phases, "fusion")
}

func TestRunHybridGuardedBraintrust_RanksValidatesAndElaborates(t *testing.T) {
	result := runMode(t, types.ModeHybridGuardedBraintrust, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.NotEmpty(t, result.FinalAnswer)
	assert.Equal(t, types.ProviderClaude, result.Synthesizer, "the first agent acts as ranker and elaborator")
}

func TestRunCodeArchitect_AssemblesAllFourRoleHeadings(t *testing.T) {
	result := runMode(t, types.ModeCodeArchitect, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT, types.ProviderGrok)
	require.Empty(t, result.AbortReason)
	assert.Contains(t, result.FinalAnswer, "## Architecture")
	assert.Contains(t, result.FinalAnswer, "## Implementation")
	assert.Contains(t, result.FinalAnswer, "## Review")
	assert.Contains(t, result.FinalAnswer, "## Tests")
	assert.Equal(t, types.ProviderGrok, result.Synthesizer, "the tester role's agent is credited as synthesizer")
}

func TestRunCodeArchitect_RepeatsRolesWithFewerAgentsThanRoles(t *testing.T) {
	result := runMode(t, types.ModeCodeArchitect, types.ProviderClaude, types.ProviderGemini)
	require.Empty(t, result.AbortReason)
	assert.Contains(t, result.FinalAnswer, "## Tests")
}

func TestRunAdversarialDebate_SynthesizesFromAThirdAgent(t *testing.T) {
	result := runMode(t, types.ModeAdversarialDebate, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.Equal(t, types.ProviderChatGPT, result.Synthesizer)
	assert.NotEmpty(t, result.FinalAnswer)
}

func TestRunAdversarialDebate_SingleAgentDebatesItself(t *testing.T) {
	result := runMode(t, types.ModeAdversarialDebate, types.ProviderClaude)
	require.Empty(t, result.AbortReason)
	assert.Equal(t, types.ProviderClaude, result.Synthesizer)
}

func TestRunExpertPanel_ModeratorIntegratesPanelStatements(t *testing.T) {
	result := runMode(t, types.ModeExpertPanel, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.Equal(t, types.ProviderClaude, result.Synthesizer)
	assert.NotEmpty(t, result.FinalAnswer)
}

func TestRunScenarioAnalysis_ChainsThroughThreeFixedRoles(t *testing.T) {
	result := runMode(t, types.ModeScenarioAnalysis, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.Equal(t, types.ProviderChatGPT, result.Synthesizer)
	var phases []string
	for _, a := range result.Artifacts {
		phases = append(phases, a.Phase)
	}
	assert.Contains(t, phases, "trends_analysis")
	assert.Contains(t, phases, "scenario_building")
}

func TestRunScenarioAnalysis_ReusesLastAgentWhenFewerThanThreeRoles(t *testing.T) {
	result := runMode(t, types.ModeScenarioAnalysis, types.ProviderClaude)
	require.Empty(t, result.AbortReason)
	assert.Equal(t, types.ProviderClaude, result.Synthesizer)
}

func TestRunRoundTable_ProducesDraftsCritiquesVotesAndSynthesis(t *testing.T) {
	result := runMode(t, types.ModeRoundTable, types.ProviderClaude, types.ProviderGemini, types.ProviderChatGPT)
	require.Empty(t, result.AbortReason)
	assert.Equal(t, types.ProviderGemini, result.Synthesizer)

	kinds := make(map[string]bool)
	for _, a := range result.Artifacts {
		kinds[a.Phase] = true
	}
	assert.True(t, kinds["draft"])
	assert.True(t, kinds["critique"])
	assert.True(t, kinds["vote"])
}
