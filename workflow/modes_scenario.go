package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

func init() {
	registerMode(types.ModeScenarioAnalysis, runScenarioAnalysis)
}

// runScenarioAnalysis: trends analyst -> scenario builder -> strategist,
// three fixed sequential roles (spec §4.9).
func runScenarioAnalysis(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) == 0 {
		return "", "", fmt.Errorf("no agents")
	}

	roleAt := func(i int) AgentHandle {
		if i < len(rs.agents) {
			return rs.agents[i]
		}
		return rs.agents[len(rs.agents)-1]
	}

	trendsAgent := roleAt(0)
	trends, ok := callAgent(ctx, rs, trendsAgent, "trends_analysis", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Identify the key trends relevant to the user's question.",
	}, nil)
	if !ok {
		return "", "", fmt.Errorf("trends analyst failed to respond")
	}
	trendsArt := types.Insight(trendsAgent.Provider, "trends_analysis", trends)
	rs.appendArtifact(trendsArt)

	if abort, reason := globalAbortTriggered(ctx, rs); abort {
		return trends, "", fmt.Errorf("%s", reason)
	}

	builderAgent := roleAt(1)
	scenarios, ok := callAgent(ctx, rs, builderAgent, "scenario_building", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Build 2-3 plausible future scenarios from the trends below.",
	}, []types.Artifact{trendsArt})
	if !ok {
		return trends, "", fmt.Errorf("scenario builder failed to respond")
	}
	scenarioArt := types.Insight(builderAgent.Provider, "scenario_building", scenarios)
	rs.appendArtifact(scenarioArt)

	if abort, reason := globalAbortTriggered(ctx, rs); abort {
		return scenarios, "", fmt.Errorf("%s", reason)
	}

	strategistAgent := roleAt(2)
	final, ok := callAgent(ctx, rs, strategistAgent, "strategy", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Recommend a strategy that holds up across the scenarios below.",
	}, []types.Artifact{scenarioArt})
	if !ok {
		return scenarios, strategistAgent.Provider, fmt.Errorf("strategist failed to respond")
	}
	return final, strategistAgent.Provider, nil
}
