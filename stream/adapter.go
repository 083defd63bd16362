// Package stream defines the uniform streaming contract every provider
// adapter implements (spec §4.2), narrowed from the teacher's
// llm.Provider/StreamChunk shape down to the text-only, single-consumer
// contract the collaboration engine actually needs.
package stream

import (
	"context"
	"time"

	"github.com/BaSui01/agentflow/types"
)

// TokenChunk is one piece of streamed output text. Chunks carry no
// metadata beyond the text itself; usage and finish reason only appear on
// the terminal CompletionSummary.
type TokenChunk struct {
	Text string
}

// CompletionSummary is delivered once, after the last TokenChunk, and
// terminates the stream.
type CompletionSummary struct {
	InputTokensUsed  int
	OutputTokensUsed int
	FinishReason     string
}

// Adapter is the uniform interface every provider package implements. A
// Stream call sends the upstream request before it returns and then
// yields chunks as they arrive. The stream is finite (the channel closes
// once the summary is populated), single-consumer, and non-restartable:
// calling Stream again starts an entirely new upstream request.
type Adapter interface {
	// Provider returns the fixed provider identifier this adapter serves.
	Provider() types.Provider

	// Stream issues one streamed completion request. The returned channel
	// yields TokenChunks as they arrive; the final receive on the channel
	// (ok == false) happens only after summary has been populated and
	// err has been resolved. A non-nil err means the stream produced no
	// usable chunks and summary is nil.
	Stream(ctx context.Context, req Request) (<-chan TokenChunk, *CompletionSummary, error)

	// HealthCheck performs a lightweight liveness probe, used by the
	// registry's background health monitor (registry/health.go).
	HealthCheck(ctx context.Context) error
}

// Request is the provider-agnostic request shape passed to Stream. The
// prompt assembler (C7) is responsible for producing SystemPrompt and
// UserPrompt already bounded to the provider's size limits; adapters do
// not re-truncate.
type Request struct {
	ModelID      string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Deadline     time.Time
}

// Drain consumes a token channel to completion and concatenates all text,
// for callers (such as workflow phase scripts) that only need the final
// text rather than incremental chunks.
func Drain(chunks <-chan TokenChunk) string {
	var out []byte
	for c := range chunks {
		out = append(out, c.Text...)
	}
	return string(out)
}
