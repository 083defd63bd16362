package types

import "time"

// WorkflowMode names one of the ten fixed collaboration phase scripts.
type WorkflowMode string

const (
	ModeRoundTable              WorkflowMode = "round_table"
	ModeSequentialCritiqueChain WorkflowMode = "sequential_critique_chain"
	ModeValidatedConsensus      WorkflowMode = "validated_consensus"
	ModeCreativeBrainstormSwarm WorkflowMode = "creative_brainstorm_swarm"
	ModeHybridGuardedBraintrust WorkflowMode = "hybrid_guarded_braintrust"
	ModeCodeArchitect           WorkflowMode = "code_architect"
	ModeAdversarialDebate       WorkflowMode = "adversarial_debate"
	ModeExpertPanel             WorkflowMode = "expert_panel"
	ModeScenarioAnalysis        WorkflowMode = "scenario_analysis"
	ModeIndividual              WorkflowMode = "individual"
)

// ContextMode controls how much prior collaboration history is embedded in
// each agent's prompt (spec §4.8).
type ContextMode string

const (
	ContextModeNone    ContextMode = "none"
	ContextModeSummary ContextMode = "summary"
	ContextModeFull    ContextMode = "full"
)

// CollabContext is the per-session message history window the context
// store (C8) maintains and the prompt assembler (C7) reads from.
type CollabContext struct {
	SessionID      string
	Mode           ContextMode
	Messages       []Message
	ContextSize    int // running character count of Messages
	MaxContextSize int
}

// Utilization returns the fraction of MaxContextSize currently used, in
// [0, 1]. Returns 0 if MaxContextSize is unset.
func (c *CollabContext) Utilization() float64 {
	if c.MaxContextSize <= 0 {
		return 0
	}
	return float64(c.ContextSize) / float64(c.MaxContextSize)
}

// NearLimit reports whether the context has reached the 0.8 utilization
// signal threshold (spec §4.8).
func (c *CollabContext) NearLimit() bool {
	return c.Utilization() >= 0.8
}

// CostTracker is the per-session running spend snapshot the budget
// governor (C3) maintains. Amounts are USD.
type CostTracker struct {
	SessionID      string
	CapUSD         float64
	SpentUSD       float64
	InputTokens    int
	OutputTokens   int
	ByProvider     map[Provider]float64
}

// NewCostTracker creates a tracker with the given session cap.
func NewCostTracker(sessionID string, capUSD float64) *CostTracker {
	return &CostTracker{
		SessionID:  sessionID,
		CapUSD:     capUSD,
		ByProvider: make(map[Provider]float64),
	}
}

// AddUsage records token usage for a provider call and returns the
// incremental USD cost.
func (t *CostTracker) AddUsage(p Provider, inputTokens, outputTokens int) float64 {
	rate := PriceFor(p)
	cost := float64(inputTokens)/1000*rate.InputPer1K + float64(outputTokens)/1000*rate.OutputPer1K
	t.InputTokens += inputTokens
	t.OutputTokens += outputTokens
	t.SpentUSD += cost
	t.ByProvider[p] += cost
	return cost
}

// ShouldAbort reports whether accumulated spend has reached the cap.
func (t *CostTracker) ShouldAbort() bool {
	return t.CapUSD > 0 && t.SpentUSD >= t.CapUSD
}

// EstimateCost projects the USD cost of calling a set of providers with an
// assumed input/output token size each, without mutating tracker state.
// Used for the pre-flight estimate before a phase starts.
func (t *CostTracker) EstimateCost(providers []Provider, assumedInputTokens, assumedOutputTokens int) float64 {
	var total float64
	for _, p := range providers {
		rate := PriceFor(p)
		total += float64(assumedInputTokens)/1000*rate.InputPer1K + float64(assumedOutputTokens)/1000*rate.OutputPer1K
	}
	return total
}

// WouldExceed reports whether adding an estimated cost to current spend
// would reach or exceed the cap.
func (t *CostTracker) WouldExceed(estimated float64) bool {
	return t.CapUSD > 0 && t.SpentUSD+estimated >= t.CapUSD
}

// ArtifactKind discriminates the union of collaboration artifacts a
// workflow phase can produce.
type ArtifactKind string

const (
	ArtifactDraft    ArtifactKind = "draft"
	ArtifactCritique ArtifactKind = "critique"
	ArtifactVote     ArtifactKind = "vote"
	ArtifactInsight  ArtifactKind = "insight"
)

// Artifact is one provider's contribution during a collaboration phase.
type Artifact struct {
	Kind     ArtifactKind
	Provider Provider
	Phase    string
	Content  string
	// VotedFor is populated when Kind == ArtifactVote: the provider (or
	// option label) this vote selected, extracted via keyword-proximity
	// scan over Content.
	VotedFor  string
	Truncated bool
	CreatedAt time.Time
}

// Draft constructs a draft artifact.
func Draft(p Provider, phase, content string) Artifact {
	return Artifact{Kind: ArtifactDraft, Provider: p, Phase: phase, Content: content, CreatedAt: time.Now()}
}

// Critique constructs a critique artifact.
func Critique(p Provider, phase, content string) Artifact {
	return Artifact{Kind: ArtifactCritique, Provider: p, Phase: phase, Content: content, CreatedAt: time.Now()}
}

// Vote constructs a vote artifact, with VotedFor already extracted.
func Vote(p Provider, phase, content, votedFor string) Artifact {
	return Artifact{Kind: ArtifactVote, Provider: p, Phase: phase, Content: content, VotedFor: votedFor, CreatedAt: time.Now()}
}

// Insight constructs an insight artifact (used by brainstorm/scenario modes).
func Insight(p Provider, phase, content string) Artifact {
	return Artifact{Kind: ArtifactInsight, Provider: p, Phase: phase, Content: content, CreatedAt: time.Now()}
}

// CollaborationOptions is the request shape the session gateway (C10)
// accepts to start a collaboration (spec §6 "start_collaboration" frame).
type CollaborationOptions struct {
	SessionID           string
	UserID              string
	Prompt              string
	Mode                WorkflowMode
	Providers           []Provider
	ModelIDs            map[Provider][]string // candidate model IDs per provider; >1 enables canary sampling
	ContextMode         ContextMode
	CapUSD              float64
	DailyCapUSD         float64
	SessionDeadline     time.Duration
	PerCallDeadline     time.Duration
	IgnoreFailingModels bool
}

// CollaborationResult is the final payload emitted as a
// "collaboration_result" event once a workflow mode's phases complete or
// the collaboration aborts early with at least one successful artifact.
type CollaborationResult struct {
	SessionID   string
	Mode        WorkflowMode
	Artifacts   []Artifact
	FinalAnswer string
	Synthesizer Provider
	CostTracker CostTracker
	Partial     bool
	AbortReason string
}

// EventType enumerates the streaming event kinds emitted over the session
// gateway's event bus (spec §5 / §6).
type EventType string

const (
	EventPhaseStart             EventType = "phase_start"
	EventAgentThinking          EventType = "agent_thinking"
	EventAgentThought           EventType = "agent_thought"
	EventAgentResponseComplete  EventType = "agent_response_complete"
	EventAgentVote              EventType = "agent_vote"
	EventAgentRetry             EventType = "agent_retry"
	EventProgressUpdate         EventType = "progress_update"
	EventCollaborationResult    EventType = "collaboration_result"
	EventCollaborationComplete  EventType = "collaboration_complete"
)

// Event is one message published on a session's event bus channel. Payload
// is kind-specific (e.g. a TokenChunk for agent_thought, a
// CollaborationResult for collaboration_result) and is left untyped here
// so the bus package can remain decoupled from every payload shape.
type Event struct {
	ID        string
	SessionID string
	Type      EventType
	Provider  Provider
	Phase     string
	Payload   any
	Timestamp time.Time // monotonic ISO-8601, set by the publisher
}
