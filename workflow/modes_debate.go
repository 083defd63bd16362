package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

func init() {
	registerMode(types.ModeAdversarialDebate, runAdversarialDebate)
}

// runAdversarialDebate: proponent, opponent, rebuttal by the proponent,
// synthesis by a third agent (or the proponent if none is available).
func runAdversarialDebate(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) == 0 {
		return "", "", fmt.Errorf("no agents")
	}

	proponent := rs.agents[0]
	proText, ok := callAgent(ctx, rs, proponent, "proponent", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Argue in favor of the strongest position on the user's question.",
	}, nil)
	if !ok {
		return "", "", fmt.Errorf("proponent failed to respond")
	}
	proArt := types.Draft(proponent.Provider, "proponent", proText)
	rs.appendArtifact(proArt)

	if abort, reason := globalAbortTriggered(ctx, rs); abort {
		return proText, "", fmt.Errorf("%s", reason)
	}

	var opponent AgentHandle
	if len(rs.agents) > 1 {
		opponent = rs.agents[1]
	} else {
		opponent = proponent
	}
	oppText, ok := callAgent(ctx, rs, opponent, "opponent", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Argue against the position below, raising the strongest counterarguments you can.",
	}, []types.Artifact{proArt})
	oppArt := types.Critique(opponent.Provider, "opponent", oppText)
	if ok {
		rs.appendArtifact(oppArt)
	}

	if abort, reason := globalAbortTriggered(ctx, rs); abort {
		return proText, "", fmt.Errorf("%s", reason)
	}

	rebuttalText, ok := callAgent(ctx, rs, proponent, "rebuttal", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Rebut the counterarguments below, defending or refining your original position.",
	}, []types.Artifact{oppArt})
	rebuttalArt := types.Critique(proponent.Provider, "rebuttal", rebuttalText)
	if ok {
		rs.appendArtifact(rebuttalArt)
	}

	var synthesizer AgentHandle
	if len(rs.agents) > 2 {
		synthesizer = rs.agents[2]
	} else {
		synthesizer = proponent
	}

	final, ok := callAgent(ctx, rs, synthesizer, "synthesis", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Weigh the debate below and produce a final, balanced answer.",
	}, []types.Artifact{proArt, oppArt, rebuttalArt})
	if !ok {
		return rebuttalText, synthesizer.Provider, fmt.Errorf("synthesis failed")
	}
	return final, synthesizer.Provider, nil
}
