package gateway

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/budget"
	"github.com/BaSui01/agentflow/concurrency"
	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
	"github.com/BaSui01/agentflow/workflow"
)

// handleChat validates the frame, filters the requested agents by key
// availability, starts a collaboration (or a single-provider chat), and
// streams the resulting events back over the connection (spec §4.10
// "chat" row).
func (s *Session) handleChat(ctx context.Context, payload json.RawMessage) {
	var p ChatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.writeJSON(ctx, errorFrame("malformed chat frame", ""))
		return
	}
	if p.Message == "" || p.UserID == "" {
		s.writeJSON(ctx, errorFrame("chat requires message and userId", ""))
		return
	}

	s.mu.Lock()
	s.userID = p.UserID
	s.state = StateActive
	s.mu.Unlock()

	providers := requestedProviders(p)
	var agents []types.Provider
	for _, prov := range providers {
		if s.deps.Registry.Available(p.UserID, prov) {
			agents = append(agents, prov)
		}
	}
	if len(agents) == 0 {
		s.writeJSON(ctx, errorFrame("no AI models available", ""))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelActive = cancel
	s.mu.Unlock()
	defer cancel()

	sub, unsubscribe := s.deps.Bus.Subscribe(s.sessionID)
	defer unsubscribe()
	go s.forwardEvents(ctx, sub)

	s.deps.CtxStore.AddUserMessage(s.sessionID, p.Message)

	if p.Target != "" && p.Target != "collab" {
		s.runSingleProvider(runCtx, p, types.Provider(p.Target))
		return
	}

	s.runCollaboration(runCtx, p, agents)
}

func requestedProviders(p ChatPayload) []types.Provider {
	if len(p.Models) > 0 {
		out := make([]types.Provider, 0, len(p.Models))
		for prov := range p.Models {
			out = append(out, prov)
		}
		return out
	}
	return types.AllProviders
}

// runSingleProvider handles target=<provider>: a plain streamed chat, no
// collaboration phases (spec §6, scenario S1).
func (s *Session) runSingleProvider(ctx context.Context, p ChatPayload, target types.Provider) {
	client, err := s.deps.Registry.GetOrCreate(p.UserID, target, s.deps.Factory)
	if err != nil {
		s.writeJSON(ctx, errorFrame(err.Error(), target))
		return
	}

	modelID := ""
	if ids := p.Models[target]; len(ids) > 0 {
		modelID = ids[0]
		if len(ids) > 1 {
			s.sampleCanary(ctx, client, target, ids[1])
		}
	}

	s.writeJSON(ctx, ResponseFrame{Type: FrameResponse, Target: target, Start: true})

	chunks, summary, err := client.Stream(ctx, stream.Request{
		ModelID:      modelID,
		SystemPrompt: types.RolePreambleFor(target),
		UserPrompt:   p.Message,
		Deadline:     time.Now().Add(concurrency.DefaultPerCallDeadline),
	})
	if err != nil {
		s.writeJSON(ctx, errorFrame(err.Error(), target))
		return
	}

	var full []byte
	for c := range chunks {
		full = append(full, c.Text...)
		s.writeJSON(ctx, ResponseFrame{Type: FrameResponse, Target: target, Content: c.Text})
	}
	s.writeJSON(ctx, ResponseFrame{Type: FrameResponse, Target: target, End: true})
	s.deps.CtxStore.AddAssistantResponse(s.sessionID, target, string(full))

	if summary != nil {
		cost := budget.NewSessionTracker(s.sessionID, p.CapUSD, s.logger).RecordUsage(target, summary.InputTokensUsed, summary.OutputTokensUsed)
		s.writeJSON(ctx, map[string]any{"type": FrameCostUpdate, "target": target, "costUSD": cost})
	}
}

// runCollaboration builds per-session workflow dependencies and invokes
// the workflow engine (spec §4.9/§4.10).
func (s *Session) runCollaboration(ctx context.Context, p ChatPayload, agentProviders []types.Provider) {
	sessionDeadline := concurrency.DefaultSessionDeadline
	if p.MaxSeconds > 0 {
		sessionDeadline = time.Duration(p.MaxSeconds) * time.Second
	}

	costs := budget.NewSessionTracker(s.sessionID, p.CapUSD, s.logger)
	breakers := concurrency.NewBreakerSet(concurrency.DefaultBreakerConfig(), s.logger)
	slots := concurrency.NewSlotManager(concurrency.DefaultSlotsPerProvider)
	deadlines := concurrency.NewDeadlineScope(ctx, sessionDeadline, concurrency.DefaultPerCallDeadline)
	defer deadlines.Cancel()

	var handles []workflow.AgentHandle
	for _, prov := range agentProviders {
		client, err := s.deps.Registry.GetOrCreate(p.UserID, prov, s.deps.Factory)
		if err != nil {
			s.logger.Warn("skipping provider without client", zap.String("provider", string(prov)), zap.Error(err))
			continue
		}
		modelID := ""
		if ids := p.Models[prov]; len(ids) > 0 {
			modelID = ids[0]
			if len(ids) > 1 {
				s.sampleCanary(ctx, client, prov, ids[1])
			}
		}
		handles = append(handles, workflow.NewAgentHandle(prov, modelID, client))
	}
	if len(handles) == 0 {
		s.writeJSON(ctx, errorFrame("no AI models available", ""))
		return
	}

	mode := p.CollaborationMode
	if mode == "" {
		s.mu.Lock()
		mode = s.collabMode
		s.mu.Unlock()
	}

	opts := types.CollaborationOptions{
		SessionID:           s.sessionID,
		UserID:              p.UserID,
		Prompt:              p.Message,
		Mode:                mode,
		Providers:           agentProviders,
		ModelIDs:            p.Models,
		ContextMode:         s.deps.CtxStore.GetOrCreate(s.sessionID).Mode,
		CapUSD:              p.CapUSD,
		DailyCapUSD:         p.DailyCapUSD,
		SessionDeadline:     sessionDeadline,
		IgnoreFailingModels: p.IgnoreFailing,
	}

	result := s.deps.Engine.Run(ctx, opts, workflow.Dependencies{
		Agents:    handles,
		Costs:     costs,
		Breakers:  breakers,
		Slots:     slots,
		Deadlines: deadlines,
		CtxStore:  s.deps.CtxStore,
	})

	s.deps.CtxStore.AddAssistantResponse(s.sessionID, result.Synthesizer, result.FinalAnswer)
	s.writeJSON(ctx, map[string]any{"type": "collaboration_result", "final": result.FinalAnswer, "partial": result.Partial, "abortReason": result.AbortReason})
}

// sampleCanary fires a background shadow probe against a second model ID
// supplied alongside a provider's primary one, logging the outcome but
// never surfacing it on the connection (SPEC_FULL.md §7 canary routing).
func (s *Session) sampleCanary(ctx context.Context, client stream.Adapter, p types.Provider, candidateModelID string) {
	if s.deps.Canary == nil {
		return
	}
	go func() {
		result := <-s.deps.Canary.SampleAsync(ctx, client, p, candidateModelID)
		if result.Err != nil {
			s.logger.Warn("canary sample failed", zap.String("provider", string(p)), zap.String("candidate_model", candidateModelID), zap.Error(result.Err))
		}
	}()
}

// forwardEvents translates published collaboration events into wire
// frames and writes them out as they arrive, per the ordering guarantees
// in spec §5.
func (s *Session) forwardEvents(ctx context.Context, events <-chan types.Event) {
	for ev := range events {
		frame := map[string]any{
			"type":      "collaboration_event",
			"eventType": ev.Type,
			"phase":     ev.Phase,
			"provider":  ev.Provider,
			"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
		}
		if ev.Payload != nil {
			frame["payload"] = ev.Payload
		}
		s.writeJSON(ctx, frame)
		if ev.Type == types.EventCollaborationComplete {
			return
		}
	}
}
