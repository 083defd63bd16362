// Package prompt implements the prompt assembler (C7): deterministic
// construction of {systemPrompt, userPrompt} from a provider role
// preamble, phase directive, style directive, and size-bounded
// collaboration context, grounded on the truncation idiom in
// agent/context/engineer.go.
package prompt

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentflow/types"
)

// Size bounds from spec §4.7.
const (
	MaxUserPromptChars  = 5000
	MaxArtifactChars    = 2000
	truncationSentinel  = "[…truncated…]"
	defaultUserQuestion = "Please respond to the best of your ability given the context provided."
)

// Style names a collaboration-wide tone directive (spec §4.7).
type Style string

const (
	StyleBalanced    Style = "balanced"
	StyleContrasting Style = "contrasting"
	StyleHarmonious  Style = "harmonious"
)

func (s Style) directive() string {
	switch s {
	case StyleContrasting:
		return "Emphasize where your view differs from other participants rather than restating consensus."
	case StyleHarmonious:
		return "Build on points of agreement and reconcile differences where possible."
	default:
		return "Give a balanced perspective, neither forcing agreement nor manufacturing disagreement."
	}
}

// Request is the input to Assemble: everything a phase needs to build one
// provider's prompt pair for one turn.
type Request struct {
	Provider        types.Provider
	Phase           string // e.g. "initial_drafting", "critique", "vote", "synthesis"
	PhaseDirective  string // human-readable instruction for this phase
	Style           Style
	UserQuestion    string
	PriorArtifacts  []types.Artifact // embedded context from earlier phases
	ContextSummary  string           // C8's formatForPrompt(mode) output, if any
}

// Assembled holds the two prompt halves a stream.Request expects.
type Assembled struct {
	SystemPrompt string
	UserPrompt   string
}

// Assemble builds the system and user prompts for one provider call. It is
// pure and deterministic: the same Request always yields the same output.
func Assemble(req Request) Assembled {
	system := buildSystemPrompt(req)
	user := buildUserPrompt(req)
	return Assembled{SystemPrompt: system, UserPrompt: user}
}

func buildSystemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(types.RolePreambleFor(req.Provider))
	b.WriteString("\n\n")
	b.WriteString(phaseInstruction(req.Phase, req.PhaseDirective))
	b.WriteString("\n")
	b.WriteString(req.Style.directive())
	return b.String()
}

func phaseInstruction(phase, directive string) string {
	if directive != "" {
		return directive
	}
	switch phase {
	case "initial_drafting":
		return "Produce your own initial draft answer to the user's question, independent of any other participant."
	case "critique":
		return "Critique the drafts below: identify specific weaknesses, omissions, or errors."
	case "vote":
		return "Review the candidates below and vote for the single strongest one, naming it explicitly."
	case "synthesis":
		return "Synthesize the contributions below into one final, coherent answer."
	default:
		return fmt.Sprintf("Contribute to the %s phase of this collaboration.", phase)
	}
}

// buildUserPrompt embeds the user's original question (explicitly marked
// so the model does not divert into meta-discussion of the collaboration
// itself) plus any size-bounded prior-phase context, capped at
// MaxUserPromptChars overall.
func buildUserPrompt(req Request) string {
	question := req.UserQuestion
	if strings.TrimSpace(question) == "" {
		question = defaultUserQuestion
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Original user question (answer this; do not discuss the collaboration process itself):\n%s\n", question)

	if req.ContextSummary != "" {
		b.WriteString("\nPrior conversation context:\n")
		b.WriteString(req.ContextSummary)
		b.WriteString("\n")
	}

	for _, a := range req.PriorArtifacts {
		fmt.Fprintf(&b, "\n--- %s from %s ---\n%s\n", a.Kind, a.Provider, truncateArtifact(a.Content))
	}

	return truncateAtWhitespace(b.String(), MaxUserPromptChars)
}

// truncateArtifact bounds one artifact's embedded content to
// MaxArtifactChars, per spec §4.7.
func truncateArtifact(content string) string {
	return truncateAtWhitespace(content, MaxArtifactChars)
}

// Truncate exposes the whitespace-boundary truncation rule for callers
// outside this package (e.g. the code_architect workflow phase, which
// bounds prior-phase artifacts to 2000 characters before the next phase).
func Truncate(s string, max int) string {
	return truncateAtWhitespace(s, max)
}

// truncateAtWhitespace cuts s to at most max chars, backing up to the
// nearest preceding whitespace boundary so a word is not split mid-token,
// then appends the truncation sentinel. When no whitespace precedes max,
// it cuts at max, splitting that word.
func truncateAtWhitespace(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut] != ' ' && s[cut] != '\n' && s[cut] != '\t' {
		cut--
	}
	if cut == 0 {
		cut = max
	}
	return strings.TrimRight(s[:cut], " \n\t") + truncationSentinel
}
