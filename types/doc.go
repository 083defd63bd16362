// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared data model for the agentflow
collaboration engine.

This is the lowest-level package in the module: it has zero dependencies
on any other agentflow package, so registry, stream, budget, concurrency,
eventbus, retry, prompt, ctxstore, workflow and gateway can all import it
without creating a cycle.

# Core types

  - Message, Role                — provider-agnostic chat message shape
  - TokenUsage, Tokenizer        — token accounting contract
  - Error, ErrorCode             — structured error carrying provider,
    collaboration phase and retry attempt for diagnosis
  - Provider                     — the six supported provider identifiers
  - CollabContext                — per-session message history window
  - CostTracker                  — running session spend snapshot
  - Draft, Critique, Vote, Insight, Artifact — collaboration artifact union
  - CollaborationOptions, CollaborationResult, Event — the public request/
    response/streaming-event shapes of the session gateway
*/
package types
