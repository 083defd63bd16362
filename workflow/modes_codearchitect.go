package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

// codeArchitectRoles is the fixed role order §4.9 assigns; role repeats
// fall back to earlier agents when there are fewer agents than roles.
var codeArchitectRoles = []string{"architect", "developer", "reviewer", "tester"}

func init() {
	registerMode(types.ModeCodeArchitect, runCodeArchitect)
}

// runCodeArchitect runs four sequential phases under fixed roles,
// truncating each phase's prior artifact to 2000 characters before it
// feeds the next phase, then assembles the full result under Markdown
// headings (spec §4.9).
func runCodeArchitect(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) == 0 {
		return "", "", fmt.Errorf("no agents")
	}

	directives := map[string]string{
		"architect": "Design the overall architecture: components, interfaces, and data flow.",
		"developer": "Implement the architecture below as working code.",
		"reviewer":  "Review the implementation below for correctness, style, and missed edge cases.",
		"tester":    "Write tests exercising the implementation below, informed by the reviewer's findings.",
	}

	var artifacts [4]types.Artifact
	var handles [4]AgentHandle

	for i, role := range codeArchitectRoles {
		a := rs.agents[i%len(rs.agents)]
		handles[i] = a

		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return assembleArchitecture(artifacts[:i]), "", fmt.Errorf("%s", reason)
		}

		var prior []types.Artifact
		if i > 0 {
			truncated := artifacts[i-1]
			truncated.Content = prompt.Truncate(truncated.Content, prompt.MaxArtifactChars)
			prior = []types.Artifact{truncated}
		}

		text, _ := callAgent(ctx, rs, a, role, prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: directives[role],
		}, prior)
		art := types.Draft(a.Provider, role, text)
		artifacts[i] = art
		rs.appendArtifact(art)
	}

	return assembleArchitecture(artifacts[:]), handles[3].Provider, nil
}

func assembleArchitecture(artifacts []types.Artifact) string {
	headings := map[string]string{
		"architect": "Architecture",
		"developer": "Implementation",
		"reviewer":  "Review",
		"tester":    "Tests",
	}
	var b strings.Builder
	for _, a := range artifacts {
		fmt.Fprintf(&b, "## %s\n%s\n\n", headings[a.Phase], a.Content)
	}
	return strings.TrimSpace(b.String())
}
