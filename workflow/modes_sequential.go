package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

// sequentialStyles is the rotating refinement tone §4.9 names for
// sequential_critique_chain: balanced, constructive, challenging, repeat.
var sequentialStyles = []string{"balanced", "constructive", "challenging"}

func init() {
	registerMode(types.ModeSequentialCritiqueChain, runSequentialCritiqueChain)
}

// runSequentialCritiqueChain has the first agent draft, each subsequent
// agent refine the previous answer under a rotating style, then the
// largest-context agent synthesizes. Emits progress_update after each
// agent (N+1 steps total).
func runSequentialCritiqueChain(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) == 0 {
		return "", "", fmt.Errorf("no agents")
	}

	var current types.Artifact
	var alive []types.Provider

	for i, a := range rs.agents {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return current.Content, "", fmt.Errorf("%s", reason)
		}

		var directive string
		var prior []types.Artifact
		if i == 0 {
			directive = "Produce an initial answer to the user's question."
		} else {
			style := sequentialStyles[(i-1)%len(sequentialStyles)]
			directive = fmt.Sprintf("Refine the previous answer below in a %s style: preserve what works, fix what doesn't.", style)
			prior = []types.Artifact{current}
		}

		text, ok := callAgent(ctx, rs, a, "refine", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: directive,
		}, prior)
		if ok {
			current = types.Draft(a.Provider, "refine", text)
			alive = append(alive, a.Provider)
			rs.appendArtifact(current)
		}

		rs.engine.Bus.Publish(ctx, types.Event{
			SessionID: rs.opts.SessionID,
			Type:      types.EventProgressUpdate,
			Provider:  a.Provider,
			Payload:   fmt.Sprintf("step %d/%d complete", i+1, len(rs.agents)+1),
		})
	}

	if len(alive) == 0 {
		return "", "", fmt.Errorf("all agents failed in the refinement chain")
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
		PhaseDirective: "Produce the final polished answer from the refinement chain below.",
	}, []types.Artifact{current})

	rs.engine.Bus.Publish(ctx, types.Event{
		SessionID: rs.opts.SessionID,
		Type:      types.EventProgressUpdate,
		Provider:  synthesizer,
		Payload:   fmt.Sprintf("step %d/%d complete", len(rs.agents)+1, len(rs.agents)+1),
	})

	if !ok {
		return current.Content, synthesizer, fmt.Errorf("synthesis failed")
	}
	return final, synthesizer, nil
}
