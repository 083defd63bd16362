package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

func init() {
	registerMode(types.ModeIndividual, runIndividual)
}

// runIndividual has every agent respond independently; no phases, no
// cross-agent context. Results are concatenated under per-agent headings.
func runIndividual(ctx context.Context, rs *runState) (string, types.Provider, error) {
	const phase = "individual"
	var b strings.Builder

	for _, a := range rs.agents {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return b.String(), "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, phase, prompt.Request{UserQuestion: rs.opts.Prompt}, nil)
		if ok {
			rs.appendArtifact(types.Draft(a.Provider, phase, text))
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", a.Provider, text)
	}
	return strings.TrimSpace(b.String()), "", nil
}
