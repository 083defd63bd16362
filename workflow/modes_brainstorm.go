package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

func init() {
	registerMode(types.ModeCreativeBrainstormSwarm, runCreativeBrainstormSwarm)
}

// runCreativeBrainstormSwarm: solo ideation, idea fusion into mega-ideas,
// a no-self vote, and amplification of the winner by the largest-context
// agent (spec §4.9).
func runCreativeBrainstormSwarm(ctx context.Context, rs *runState) (string, types.Provider, error) {
	var ideaArtifacts []types.Artifact
	for _, a := range rs.agents {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "ideation", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Generate 3 to 5 distinct ideas addressing the user's question, as a short numbered list.",
		}, nil)
		if ok {
			art := types.Insight(a.Provider, "ideation", text)
			ideaArtifacts = append(ideaArtifacts, art)
			rs.appendArtifact(art)
		}
	}
	if len(ideaArtifacts) == 0 {
		return "", "", fmt.Errorf("all agents failed during ideation")
	}

	var megaArtifacts []types.Artifact
	for _, a := range rs.agents {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "fusion", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Merge at least 2 ideas from the pool below into one stronger \"mega-idea\".",
		}, ideaArtifacts)
		if ok {
			art := types.Insight(a.Provider, "fusion", text)
			megaArtifacts = append(megaArtifacts, art)
			rs.appendArtifact(art)
		}
	}
	if len(megaArtifacts) == 0 {
		return "", "", fmt.Errorf("all agents failed during idea fusion")
	}

	alive := make([]types.Provider, 0, len(megaArtifacts))
	for _, a := range megaArtifacts {
		alive = append(alive, a.Provider)
	}

	votes := make(map[types.Provider]int)
	for _, a := range rs.agents {
		if !isAlive(alive, a.Provider) {
			continue
		}
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		others := otherDraftArtifacts(megaArtifacts, a.Provider)
		text, ok := callAgent(ctx, rs, a, "vote", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Vote for the strongest mega-idea among the others below (not your own), naming the provider explicitly.",
		}, others)
		if !ok {
			continue
		}
		votedFor := extractVote(text, alive, a.Provider)
		rs.recordVote(ctx, "vote", a.Provider, text, votedFor)
		if votedFor != "" {
			votes[types.Provider(votedFor)]++
		}
	}

	winner := winningProvider(votes, alive)
	var winningArtifact types.Artifact
	for _, a := range megaArtifacts {
		if a.Provider == winner {
			winningArtifact = a
		}
	}

	amplifier := largestContextAgent(alive)
	var ampHandle AgentHandle
	for _, a := range rs.agents {
		if a.Provider == amplifier {
			ampHandle = a
		}
	}
	final, ok := callAgent(ctx, rs, ampHandle, "amplification", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Amplify and flesh out the winning mega-idea below into a complete, actionable answer.",
	}, []types.Artifact{winningArtifact})
	if !ok {
		return winningArtifact.Content, amplifier, fmt.Errorf("amplification failed")
	}
	return final, amplifier, nil
}

// winningProvider returns the most-voted provider, falling back to the
// enumeration-order tie-break when no votes were cast or counts tie.
func winningProvider(votes map[types.Provider]int, alive []types.Provider) types.Provider {
	best := largestContextAgent(alive) // deterministic fallback
	bestVotes := -1
	ordered := make([]types.Provider, len(alive))
	copy(ordered, alive)
	sort.SliceStable(ordered, func(i, j int) bool { return enumIndex(ordered[i]) < enumIndex(ordered[j]) })
	for _, p := range ordered {
		if votes[p] > bestVotes {
			best, bestVotes = p, votes[p]
		}
	}
	return best
}
