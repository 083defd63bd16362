package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

// CanaryResult records the outcome of a shadow-routed probe call: latency
// and whether it succeeded, for observability only. The candidate
// response itself is discarded — it never reaches a collaboration
// artifact.
type CanaryResult struct {
	Provider    types.Provider
	CandidateID string
	Latency     time.Duration
	Err         error
}

// CanaryRouter optionally samples a candidate model ID alongside the
// configured default for a provider, discarding the result and recording
// its latency and error for later comparison. Adapted from the teacher's
// llm.CanaryRouter, narrowed to a single-shot sample per call rather than
// the teacher's weighted traffic-splitting percentage, since this engine
// only activates canarying when CollaborationOptions explicitly lists a
// second candidate model ID for a provider (spec §4.9 "Open Questions"
// is silent here; this is a supplemented feature, SPEC_FULL.md §7).
type CanaryRouter struct {
	logger *zap.Logger
}

// NewCanaryRouter creates a canary router.
func NewCanaryRouter(logger *zap.Logger) *CanaryRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanaryRouter{logger: logger.With(zap.String("component", "registry.canary"))}
}

// SampleAsync fires a fixed, minimal streaming request against the
// candidate model in the background, discarding all output, and reports
// the result on the returned channel. The caller does not block on it;
// it is purely for observability of a new model's viability before
// promoting it to default.
func (r *CanaryRouter) SampleAsync(ctx context.Context, adapter stream.Adapter, p types.Provider, candidateModelID string) <-chan CanaryResult {
	out := make(chan CanaryResult, 1)
	go func() {
		start := time.Now()
		chunks, _, err := adapter.Stream(ctx, stream.Request{
			ModelID:      candidateModelID,
			SystemPrompt: "You are responding to a latency/availability probe. Reply with one short sentence.",
			UserPrompt:   "ping",
			MaxTokens:    16,
			Deadline:     time.Now().Add(10 * time.Second),
		})
		if err == nil && chunks != nil {
			stream.Drain(chunks) // discard text, only latency/error matter
		}
		result := CanaryResult{Provider: p, CandidateID: candidateModelID, Latency: time.Since(start), Err: err}
		r.logger.Debug("canary sample complete",
			zap.String("provider", string(p)),
			zap.String("candidate_model", candidateModelID),
			zap.Duration("latency", result.Latency),
			zap.Error(err))
		out <- result
		close(out)
	}()
	return out
}
