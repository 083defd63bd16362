package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/types"
)

// issueKeywords are the verifier phrases §4.9 counts to decide whether a
// rewrite phase is warranted for validated_consensus.
var issueKeywords = []string{"incorrect", "false", "misleading", "unsupported", "citation needed", "inaccurate", "error"}

func init() {
	registerMode(types.ModeValidatedConsensus, runValidatedConsensus)
}

// runValidatedConsensus requires >=3 agents: two co-drafters, a merge
// step, verifiers, and a conditional rewrite phase (spec §4.9).
func runValidatedConsensus(ctx context.Context, rs *runState) (string, types.Provider, error) {
	if len(rs.agents) < 3 {
		return "", "", fmt.Errorf("validated_consensus requires at least 3 agents")
	}

	coDrafters := rs.agents[:2]
	verifiers := rs.agents[2:]

	var draftArtifacts []types.Artifact
	for _, a := range coDrafters {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return "", "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "co_draft", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Produce a thorough, independent draft answer to the user's question.",
		}, nil)
		if ok {
			art := types.Draft(a.Provider, "co_draft", text)
			draftArtifacts = append(draftArtifacts, art)
			rs.appendArtifact(art)
		}
	}
	if len(draftArtifacts) == 0 {
		return "", "", fmt.Errorf("both co-drafters failed")
	}

	var merged types.Artifact
	if len(draftArtifacts) == 1 {
		merged = draftArtifacts[0]
	} else {
		merger := coDrafters[0]
		text, ok := callAgent(ctx, rs, merger, "merge", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Merge the two drafts below into a single coherent draft, preserving the strongest points of each.",
		}, draftArtifacts)
		if !ok {
			merged = draftArtifacts[0]
		} else {
			merged = types.Draft(merger.Provider, "merge", text)
			rs.appendArtifact(merged)
		}
	}

	var issueCounts []int
	var verifierTexts []types.Artifact
	for _, a := range verifiers {
		if abort, reason := globalAbortTriggered(ctx, rs); abort {
			return merged.Content, "", fmt.Errorf("%s", reason)
		}
		text, ok := callAgent(ctx, rs, a, "verify", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Fact-check the merged draft below; explicitly flag anything incorrect, misleading, unsupported, or inaccurate.",
		}, []types.Artifact{merged})
		if !ok {
			continue
		}
		art := types.Critique(a.Provider, "verify", text)
		verifierTexts = append(verifierTexts, art)
		rs.appendArtifact(art)
		issueCounts = append(issueCounts, countIssueKeywords(text))
	}

	if needsRewrite(issueCounts) {
		rewriter := coDrafters[0]
		text, ok := callAgent(ctx, rs, rewriter, "rewrite", prompt.Request{
			UserQuestion:   rs.opts.Prompt,
			PhaseDirective: "Rewrite the draft below to address every issue the verifiers raised.",
		}, append([]types.Artifact{merged}, verifierTexts...))
		if ok {
			rs.appendArtifact(types.Draft(rewriter.Provider, "rewrite", text))
			return text, rewriter.Provider, nil
		}
	}

	return merged.Content, merged.Provider, nil
}

func countIssueKeywords(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, kw := range issueKeywords {
		count += strings.Count(lower, kw)
	}
	return count
}

func needsRewrite(counts []int) bool {
	if len(counts) == 0 {
		return false
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return float64(total)/float64(len(counts)) >= 3
}
