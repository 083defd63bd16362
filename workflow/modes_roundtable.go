package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

func init() {
	registerMode(types.ModeRoundTable, runRoundTable)
}

// runRoundTable implements the four-phase round_table contract (spec
// §4.9): draft, critique, vote, synthesis.
func runRoundTable(ctx context.Context, rs *runState) (string, types.Provider, error) {
	drafts := make(map[types.Provider]string)
	var draftArtifacts []types.Artifact

	for _, a := range rs.agents {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "draft", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Produce your own independent initial draft answer to the user's question.",
		}, nil)
		drafts[a.Provider] = text
		if ok {
			art := types.Draft(a.Provider, "draft", text)
			draftArtifacts = append(draftArtifacts, art)
			rs.appendArtifact(art)
		}
	}

	alive := aliveProviders(rs, drafts)
	if len(alive) == 0 {
		return "", "", fmt.Errorf("all agents failed at draft phase")
	}

	for _, a := range rs.agents {
		if !isAlive(alive, a.Provider) {
			continue
		}
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return synthesizeAbort(drafts, alive), "", fmt.Errorf("%s", reason)
		}
		others := otherDraftArtifacts(draftArtifacts, a.Provider)
		text, ok := callAgent(ctx, rs, a, "critique", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Critique every other participant's draft below: identify specific weaknesses, omissions, or errors.",
		}, others)
		if ok {
			rs.appendArtifact(types.Critique(a.Provider, "critique", text))
		}
	}

	votes := make(map[types.Provider]int)
	for _, a := range rs.agents {
		if !isAlive(alive, a.Provider) {
			continue
		}
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return synthesizeAbort(drafts, alive), "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "vote", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Vote for the single strongest draft among the other participants, naming the provider explicitly.",
		}, otherDraftArtifacts(draftArtifacts, a.Provider))
		if !ok {
			continue
		}
		votedFor := extractVote(text, alive, a.Provider)
		rs.recordVote(ctx, "vote", a.Provider, text, votedFor)
		if votedFor != "" {
			votes[types.Provider(votedFor)]++
		}
	}

	synthesizer := largestContextAgent(alive)
	var synthHandle AgentHandle
	for _, a := range rs.agents {
		if a.Provider == synthesizer {
			synthHandle = a
		}
	}

	final, ok := callAgent(ctx, rs, synthHandle, "synthesis", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Synthesize the drafts, critiques, and votes below into one final answer, split explicitly into a \"FINAL ANSWER\" section and a \"RATIONALE\" section.",
	}, draftArtifacts)
	if !ok {
		return synthesizeAbort(drafts, alive), synthesizer, fmt.Errorf("synthesis failed")
	}
	return final, synthesizer, nil
}

func aliveProviders(rs *runState, drafts map[types.Provider]string) []types.Provider {
	var alive []types.Provider
	for _, a := range rs.agents {
		if _, failed := rs.failed[a.Provider]; !failed {
			alive = append(alive, a.Provider)
		}
	}
	return alive
}

func isAlive(alive []types.Provider, p types.Provider) bool {
	for _, a := range alive {
		if a == p {
			return true
		}
	}
	return false
}

func otherDraftArtifacts(drafts []types.Artifact, self types.Provider) []types.Artifact {
	out := make([]types.Artifact, 0, len(drafts))
	for _, d := range drafts {
		if d.Provider != self {
			out = append(out, d)
		}
	}
	return out
}

func synthesizeAbort(drafts map[types.Provider]string, alive []types.Provider) string {
	var b strings.Builder
	b.WriteString("Collaboration aborted before synthesis; surviving drafts:\n")
	for _, p := range alive {
		fmt.Fprintf(&b, "- %s: %s\n", p, prompt.Truncate(drafts[p], 300))
	}
	return b.String()
}
