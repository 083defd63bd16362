package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

func init() {
	registerMode(types.ModeHybridGuardedBraintrust, runHybridGuardedBraintrust)
}

// runHybridGuardedBraintrust: creative ideation, ranking by one ranker,
// a validation sweep by up to two other agents, then final elaboration
// (spec §4.9).
func runHybridGuardedBraintrust(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) == 0 {
		return "", "", fmt.Errorf("no agents")
	}

	var ideas []types.Artifact
	for _, a := range rs.agents {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "ideation", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Propose a creative approach to the user's question.",
		}, nil)
		if ok {
			art := types.Insight(a.Provider, "ideation", text)
			ideas = append(ideas, art)
			rs.appendArtifact(art)
		}
	}
	if len(ideas) == 0 {
		return "", "", fmt.Errorf("all agents failed during ideation")
	}

	ranker := rs.agents[0]
	rankingText, ok := callAgent(ctx, rs, ranker, "ranking", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Rank the ideas below from strongest to weakest and name the single best one explicitly.",
	}, ideas)
	var top types.Artifact
	if ok {
		rs.appendArtifact(types.Critique(ranker.Provider, "ranking", rankingText))
		top = pickRanked(ideas, rankingText, ranker.Provider)
	} else {
		top = ideas[0]
	}

	var validators []AgentHandle
	for _, a := range rs.agents {
		if a.Provider != ranker.Provider {
			validators = append(validators, a)
		}
		if len(validators) == 2 {
			break
		}
	}

	var validations []types.Artifact
	for _, a := range validators {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return top.Content, "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "validation", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Validate the top idea below for factual accuracy, feasibility, risks, and supporting evidence.",
		}, []types.Artifact{top})
		if ok {
			art := types.Critique(a.Provider, "validation", text)
			validations = append(validations, art)
			rs.appendArtifact(art)
		}
	}

	elaborator := ranker
	final, ok := callAgent(ctx, rs, elaborator, "elaboration", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Elaborate the validated idea below into a complete final answer, incorporating the validators' feedback.",
	}, append([]types.Artifact{top}, validations...))
	if !ok {
		return top.Content, elaborator.Provider, fmt.Errorf("elaboration failed")
	}
	return final, elaborator.Provider, nil
}

// pickRanked extracts the provider the ranker named as best via the
// shared vote-extraction rule, falling back to the first idea.
func pickRanked(ideas []types.Artifact, rankingText string, ranker types.Provider) types.Artifact {
	candidates := make([]types.Provider, 0, len(ideas))
	for _, idea := range ideas {
		candidates = append(candidates, idea.Provider)
	}
	best := extractVote(rankingText, candidates, ranker)
	for _, idea := range ideas {
		if string(idea.Provider) == best {
			return idea
		}
	}
	return ideas[0]
}
