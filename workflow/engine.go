// Package workflow implements the workflow engine (C9): the shared
// five-step skeleton every collaboration mode runs through, plus the ten
// mode-specific phase scripts registered in the modes_*.go files,
// grounded on agent/collaboration/multi_agent.go's coordinator dispatch
// and roles.go's role-rotation idiom.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/budget"
	"github.com/BaSui01/agentflow/concurrency"
	"github.com/BaSui01/agentflow/ctxstore"
	"github.com/BaSui01/agentflow/eventbus"
	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/internal/telemetry"
	"github.com/BaSui01/agentflow/prompt"
	"github.com/BaSui01/agentflow/retry"
	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

// AgentHandle is one usable participant: a provider with a resolved
// client and the model ID to call it with.
type AgentHandle struct {
	Provider types.Provider
	ModelID  string
	Adapter  stream.Adapter
}

// modeFunc runs one workflow mode's phases and returns the final answer
// text plus the provider that produced it. Errors returned here are
// treated as global aborts by Run.
type modeFunc func(ctx context.Context, rs *runState) (finalText string, synthesizer types.Provider, err error)

var modeRegistry = make(map[types.WorkflowMode]modeFunc)

func registerMode(m types.WorkflowMode, fn modeFunc) {
	modeRegistry[m] = fn
}

// Engine wires the other nine components together to execute a
// collaboration from a CollaborationOptions request to a
// CollaborationResult.
type Engine struct {
	Bus          *eventbus.Bus
	RetryPolicy  retry.Policy
	SlotsPerProv int64
	Logger       *zap.Logger
}

// New creates a workflow engine.
func New(bus *eventbus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Bus: bus, RetryPolicy: retry.DefaultPolicy(), Logger: logger.With(zap.String("component", "workflow"))}
}

// runState carries every piece of shared state one collaboration's phase
// scripts need, threaded through the mode funcs instead of stored on the
// Engine (which is shared across concurrent sessions).
type runState struct {
	engine    *Engine
	opts      types.CollaborationOptions
	agents    []AgentHandle
	costs     *budget.SessionTracker
	breakers  *concurrency.BreakerSet
	slots     *concurrency.SlotManager
	deadlines *concurrency.DeadlineScope
	ctxStore  *ctxstore.Store
	failed    map[types.Provider]string
	artifacts []types.Artifact
	logger    *zap.Logger
}

// Dependencies bundles the per-session component instances Run needs,
// constructed fresh for each collaboration by the session gateway.
type Dependencies struct {
	Agents    []AgentHandle
	Costs     *budget.SessionTracker
	Breakers  *concurrency.BreakerSet
	Slots     *concurrency.SlotManager
	Deadlines *concurrency.DeadlineScope
	CtxStore  *ctxstore.Store
}

// NewAgentHandle constructs an AgentHandle. Exported so the session
// gateway (which owns the registry) can build the agent list Run expects.
func NewAgentHandle(p types.Provider, modelID string, adapter stream.Adapter) AgentHandle {
	return AgentHandle{Provider: p, ModelID: modelID, Adapter: adapter}
}

// Run executes the shared skeleton (spec §4.9): filter usable agents,
// pre-flight cost check, deadline scope, mode dispatch, and a guaranteed
// collaboration_result + collaboration_complete event pair.
func (e *Engine) Run(ctx context.Context, opts types.CollaborationOptions, deps Dependencies) types.CollaborationResult {
	logger := e.Logger.With(zap.String("session_id", opts.SessionID), zap.String("mode", string(opts.Mode)))

	ctx, span := telemetry.Tracer().Start(ctx, "collaboration.run",
		oteltrace.WithAttributes(
			attribute.String("session_id", opts.SessionID),
			attribute.String("mode", string(opts.Mode)),
		),
	)
	defer span.End()

	rs := &runState{
		engine:    e,
		opts:      opts,
		agents:    deps.Agents,
		costs:     deps.Costs,
		breakers:  deps.Breakers,
		slots:     deps.Slots,
		deadlines: deps.Deadlines,
		ctxStore:  deps.CtxStore,
		failed:    make(map[types.Provider]string),
		logger:    logger,
	}

	result := e.run(ctx, rs)
	if result.AbortReason != "" {
		span.SetStatus(codes.Error, result.AbortReason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	e.Bus.Publish(ctx, types.Event{SessionID: opts.SessionID, Type: types.EventCollaborationResult, Payload: result})
	e.Bus.Publish(ctx, types.Event{SessionID: opts.SessionID, Type: types.EventCollaborationComplete})
	return result
}

func (e *Engine) run(ctx context.Context, rs *runState) types.CollaborationResult {
	opts := rs.opts

	usable := make([]AgentHandle, 0, len(rs.agents))
	for _, a := range rs.agents {
		if a.Adapter != nil {
			usable = append(usable, a)
		}
	}
	rs.agents = usable
	if len(usable) == 0 {
		return abortResult(opts, "no agents", "")
	}

	providers := make([]types.Provider, len(usable))
	for i, a := range usable {
		providers[i] = a.Provider
	}
	estimate := rs.costs.EstimateText(providers, opts.Prompt, budget.DefaultAssumedOutputTokens)
	if rs.costs.WouldExceed(estimate) {
		return abortResult(opts, "over budget", "")
	}

	sessionCtx := rs.deadlines.SessionContext()

	fn, ok := modeRegistry[opts.Mode]
	if !ok {
		rs.logger.Error("unknown workflow mode")
		return abortResult(opts, fmt.Sprintf("unknown mode %q", opts.Mode), "")
	}

	final, synthesizer, err := fn(sessionCtx, rs)
	snapshot := rs.costs.Snapshot()

	if err != nil {
		partial := len(collectArtifacts(rs)) > 0
		return types.CollaborationResult{
			SessionID:   opts.SessionID,
			Mode:        opts.Mode,
			Artifacts:   collectArtifacts(rs),
			FinalAnswer: final,
			CostTracker: snapshot,
			Partial:     partial,
			AbortReason: err.Error(),
		}
	}

	return types.CollaborationResult{
		SessionID:   opts.SessionID,
		Mode:        opts.Mode,
		Artifacts:   collectArtifacts(rs),
		FinalAnswer: final,
		Synthesizer: synthesizer,
		CostTracker: snapshot,
	}
}

// collectArtifacts is a placeholder accessor: mode funcs accumulate their
// artifacts on rs via appendArtifact and this reads them back.
func collectArtifacts(rs *runState) []types.Artifact {
	return rs.artifacts
}

func (rs *runState) appendArtifact(a types.Artifact) {
	rs.artifacts = append(rs.artifacts, a)
}

// recordVote appends a vote artifact and publishes EventAgentVote alongside
// it, so listeners see the tally as it happens rather than only in the
// final collaboration result (spec §4.5's event list).
func (rs *runState) recordVote(ctx context.Context, phase string, provider types.Provider, text, votedFor string) {
	rs.appendArtifact(types.Vote(provider, phase, text, votedFor))
	rs.engine.Bus.Publish(ctx, types.Event{
		SessionID: rs.opts.SessionID,
		Type:      types.EventAgentVote,
		Phase:     phase,
		Provider:  provider,
		Payload:   map[string]string{"votedFor": votedFor},
	})
}

func abortResult(opts types.CollaborationOptions, reason, final string) types.CollaborationResult {
	if final == "" {
		final = "Collaboration aborted: " + reason + "."
	}
	return types.CollaborationResult{
		SessionID:   opts.SessionID,
		Mode:        opts.Mode,
		FinalAnswer: final,
		Partial:     false,
		AbortReason: reason,
	}
}

// callAgent runs one provider call through the slot manager, circuit
// breaker, and retry policy, publishing agent_thinking / agent_thought /
// agent_response_complete events along the way. On failure it returns the
// spec §7 inline placeholder text instead of propagating, unless the
// failure is a global abort condition (cost/deadline), which the caller
// checks separately via rs.costs.ShouldAbort()/ctx.Err().
func callAgent(ctx context.Context, rs *runState, a AgentHandle, phase string, req prompt.Request, priorArtifacts []types.Artifact) (string, bool) {
	ctx, span := telemetry.Tracer().Start(ctx, "collaboration.call_agent",
		oteltrace.WithAttributes(
			attribute.String("provider", string(a.Provider)),
			attribute.String("phase", phase),
		),
	)
	defer span.End()

	breaker := rs.breakers.For(a.Provider)
	if allowed, err := breaker.Allow(); !allowed {
		rs.logger.Warn("breaker open, skipping provider", zap.String("provider", string(a.Provider)), zap.Error(err))
		return placeholder(a.Provider, phase, "repeated failures"), false
	}

	release, err := rs.slots.Acquire(ctx, a.Provider)
	if err != nil {
		return placeholder(a.Provider, phase, "concurrency limit"), false
	}
	defer release()

	req.Provider = a.Provider
	req.Phase = phase
	req.PriorArtifacts = priorArtifacts
	assembled := prompt.Assemble(req)
	callStart := time.Now()

	rs.engine.Bus.Publish(ctx, types.Event{SessionID: rs.opts.SessionID, Type: types.EventPhaseStart, Phase: phase, Provider: a.Provider})
	rs.engine.Bus.Publish(ctx, types.Event{SessionID: rs.opts.SessionID, Type: types.EventAgentThinking, Phase: phase, Provider: a.Provider})

	var fullText strings.Builder
	var summary *stream.CompletionSummary

	callErr := retry.Do(ctx, rs.engine.RetryPolicy, a.Provider, phase, rs.deadlines.NewCall, func(attempt int, e *types.Error, delay time.Duration) {
		rs.engine.Bus.Publish(ctx, types.Event{SessionID: rs.opts.SessionID, Type: types.EventAgentRetry, Phase: phase, Provider: a.Provider, Payload: e})
	}, rs.logger, func(callCtx context.Context, attempt int) error {
		fullText.Reset()
		chunks, sum, err := a.Adapter.Stream(callCtx, stream.Request{
			ModelID:      a.ModelID,
			SystemPrompt: assembled.SystemPrompt,
			UserPrompt:   assembled.UserPrompt,
			Deadline:     time.Now().Add(concurrency.DefaultPerCallDeadline),
		})
		if err != nil {
			return err
		}
		for c := range chunks {
			fullText.WriteString(c.Text)
			rs.engine.Bus.Publish(callCtx, types.Event{SessionID: rs.opts.SessionID, Type: types.EventAgentThought, Phase: phase, Provider: a.Provider, Payload: stream.TokenChunk{Text: c.Text}})
		}
		summary = sum
		return nil
	})

	if callErr != nil {
		breaker.RecordFailure()
		rs.failed[a.Provider] = callErr.Error()
		rs.logger.Warn("agent call failed", zap.String("provider", string(a.Provider)), zap.String("phase", phase), zap.Error(callErr))
		metrics.ObserveProviderCall(string(a.Provider), phase, false, time.Since(callStart))
		span.SetStatus(codes.Error, callErr.Error())
		return placeholder(a.Provider, phase, callErr.Error()), false
	}

	breaker.RecordSuccess()
	span.SetStatus(codes.Ok, "")
	metrics.ObserveProviderCall(string(a.Provider), phase, true, time.Since(callStart))
	if summary != nil {
		cost := rs.costs.RecordUsage(a.Provider, summary.InputTokensUsed, summary.OutputTokensUsed)
		metrics.RecordUsage(string(a.Provider), summary.InputTokensUsed, summary.OutputTokensUsed, cost)
	}
	rs.engine.Bus.Publish(ctx, types.Event{SessionID: rs.opts.SessionID, Type: types.EventAgentResponseComplete, Phase: phase, Provider: a.Provider})
	return fullText.String(), true
}

func placeholder(p types.Provider, phase, reason string) string {
	return fmt.Sprintf("[%s was unable to provide a %s contribution: %s]", p, phase, reason)
}

// globalAbortTriggered reports whether the session should stop early due
// to cost or deadline, per the shared skeleton's step 5.
func globalAbortTriggered(ctx context.Context, rs *runState) (bool, string) {
	if rs.costs.ShouldAbort() {
		return true, "cost limit exceeded"
	}
	if ctx.Err() != nil {
		return true, "deadline exceeded"
	}
	return false, ""
}

// largestContextAgent returns the candidate with the largest known
// context window, tie-broken by provider enumeration order (spec §4.9).
func largestContextAgent(candidates []types.Provider) types.Provider {
	if len(candidates) == 0 {
		return ""
	}
	ordered := make([]types.Provider, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return enumIndex(ordered[i]) < enumIndex(ordered[j])
	})

	best := ordered[0]
	bestWindow := types.ContextWindowFor(best)
	for _, p := range ordered[1:] {
		if w := types.ContextWindowFor(p); w > bestWindow {
			best, bestWindow = p, w
		}
	}
	return best
}

func enumIndex(p types.Provider) int {
	for i, candidate := range types.AllProviders {
		if candidate == p {
			return i
		}
	}
	return len(types.AllProviders)
}

// voteKeywords are the keywords §4.9's vote-extraction rule scans for
// within 50 characters of a candidate's provider identifier.
var voteKeywords = []string{"vote", "choose", "select", "prefer", "pick"}

// extractVote scans text for the first candidate provider identifier that
// appears within 50 characters of a vote keyword; falls back to the
// first-mentioned other candidate; returns "" if none are mentioned.
func extractVote(text string, candidates []types.Provider, self types.Provider) string {
	lower := strings.ToLower(text)

	type mention struct {
		provider types.Provider
		index    int
	}
	var mentions []mention
	for _, c := range candidates {
		if c == self {
			continue
		}
		name := strings.ToLower(string(c))
		for from := 0; ; {
			idx := strings.Index(lower[from:], name)
			if idx < 0 {
				break
			}
			mentions = append(mentions, mention{provider: c, index: from + idx})
			from += idx + len(name)
		}
	}
	if len(mentions) == 0 {
		return ""
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].index < mentions[j].index })

	for _, kw := range voteKeywords {
		for idx := 0; ; {
			kwIdx := strings.Index(lower[idx:], kw)
			if kwIdx < 0 {
				break
			}
			kwIdx += idx
			for _, m := range mentions {
				if abs(m.index-kwIdx) <= 50 {
					return string(m.provider)
				}
			}
			idx = kwIdx + len(kw)
		}
	}
	return string(mentions[0].provider)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

