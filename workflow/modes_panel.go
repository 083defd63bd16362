package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

// expertRoles is the fixed role set §4.9 names, truncated to the number
// of participating agents.
var expertRoles = []string{"Technical Expert", "Business Strategist", "UX Specialist", "Risk & Compliance Analyst"}

func init() {
	registerMode(types.ModeExpertPanel, runExpertPanel)
}

// runExpertPanel has each agent speak from a predefined expert role, then
// a moderator simulates a dialogue among them and issues an integrated
// recommendation.
func runExpertPanel(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) == 0 {
		return "", "", fmt.Errorf("no agents")
	}

	roles := expertRoles
	if len(roles) > len(rs.agents) {
		roles = roles[:len(rs.agents)]
	}

	var statements []types.Artifact
	for i, role := range roles {
		a := rs.agents[i]
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "panel_statement", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: fmt.Sprintf("Speak from the perspective of a %s: give your assessment of the user's question.", role),
		}, nil)
		if ok {
			art := types.Insight(a.Provider, "panel_statement", text)
			statements = append(statements, art)
			rs.appendArtifact(art)
		}
	}
	if len(statements) == 0 {
		return "", "", fmt.Errorf("all panel experts failed to respond")
	}

	moderator := rs.agents[0]
	final, ok := callAgent(ctx, rs, moderator, "moderation", prompt.Request{
		UserQuestion:   rs.opts.Prompt,
		PhaseDirective: "Simulate a dialogue among the panel's statements below, then issue one integrated recommendation.",
	}, statements)
	if !ok {
		return "", "", fmt.Errorf("moderator failed to respond")
	}
	return final, moderator.Provider, nil
}
