// Package gateway implements the session gateway (C10): the WebSocket
// connection state machine that authenticates callers, routes inbound
// frames to the other components, and forwards collaboration events back
// to the client, grounded on agent/streaming/ws_adapter.go's
// websocket.Conn wrapping and internal/server/manager.go's lifecycle
// idiom.
package gateway

import (
	"encoding/json"

	"github.com/BaSui01/agentflow/types"
)

// FrameType enumerates every inbound/outbound wire frame `type` value
// (spec §6).
type FrameType string

const (
	FrameAuthenticate      FrameType = "authenticate"
	FrameChat              FrameType = "chat"
	FrameCommand           FrameType = "command"
	FrameSetCollabMode     FrameType = "set_collab_mode"
	FrameSetCollabStyle    FrameType = "set_collab_style"
	FrameCancelCollab      FrameType = "cancel_collaboration"
	FrameContextStatus     FrameType = "context_status"
	FrameResetContext      FrameType = "reset_context"
	FrameTrimContext       FrameType = "trim_context"
	FrameSetMaxContextSize FrameType = "set_max_context_size"
	FrameSetContextMode    FrameType = "set_context_mode"
	FrameGetSessionCost    FrameType = "get_session_cost"
	FrameGetDailyCost      FrameType = "get_daily_cost"
	FrameSetBudgetLimit    FrameType = "set_budget_limit"
	FramePing              FrameType = "ping"
	FrameDebugPing         FrameType = "debug_ping"

	FrameResponse           FrameType = "response"
	FrameError              FrameType = "error"
	FrameModelStatus        FrameType = "model_status"
	FrameProgressUpdate     FrameType = "progress_update"
	FramePhaseChange        FrameType = "phase_change"
	FrameCostUpdate         FrameType = "cost_update"
	FrameCostInfo           FrameType = "cost_info"
	FrameBudgetExceeded     FrameType = "budget_exceeded"
	FrameSessionCost        FrameType = "session_cost"
	FrameDailyCost          FrameType = "daily_cost"
	FrameBudgetLimitSet     FrameType = "budget_limit_set"
	FramePong               FrameType = "pong"
	FrameCollaborationEvent FrameType = "collaboration_event"
)

// InboundFrame is the generic envelope every client message decodes into
// first: Type picks the handler, and Payload holds the raw bytes of the
// nested "payload" object, re-decoded into the type-specific shape once
// Type is known.
type InboundFrame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AuthenticatePayload is the `authenticate` frame body (spec §6:
// `{type:"authenticate", userId:<string>}`). Token is an optional
// bearer addition (SPEC_FULL.md's C10 JWT wiring): when present it must
// be a valid HS256 token whose `userId` claim is used instead of the
// plain field, so a caller can't forge a token-bearing frame for
// another user's id.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// ChatPayload is the `chat` frame body (spec §6).
type ChatPayload struct {
	Target            string                     `json:"target"` // provider name, or "collab"
	Message           string                     `json:"message"`
	FilePaths         []string                   `json:"filePaths,omitempty"`
	Models            map[types.Provider][]string `json:"models,omitempty"`
	CollaborationMode types.WorkflowMode         `json:"collaborationMode,omitempty"`
	SequentialStyle   string                     `json:"sequentialStyle,omitempty"`
	UserID            string                     `json:"userId"`
	IgnoreFailing     bool                       `json:"ignoreFailingModels,omitempty"`
	CapUSD            float64                    `json:"capUSD,omitempty"`
	DailyCapUSD       float64                    `json:"dailyCapUSD,omitempty"`
	MaxSeconds        int                        `json:"maxSeconds,omitempty"`
}

// SetCollabModePayload / SetCollabStylePayload adjust session-wide
// collaboration config.
type SetCollabModePayload struct {
	Mode types.WorkflowMode `json:"mode"`
}

type SetCollabStylePayload struct {
	Style string `json:"style"`
}

// SetMaxContextSizePayload / SetContextModePayload delegate to the
// context store.
type SetMaxContextSizePayload struct {
	MaxSize int `json:"maxSize"`
}

type SetContextModePayload struct {
	Mode types.ContextMode `json:"mode"`
}

// SetBudgetLimitPayload delegates to the cost governor.
type SetBudgetLimitPayload struct {
	CapUSD      float64 `json:"capUSD,omitempty"`
	DailyCapUSD float64 `json:"dailyCapUSD,omitempty"`
}

// ResponseFrame is one outbound `response` frame: a token chunk, an end
// marker, or a summary marker, distinguished by which optional field is
// set (spec §6).
type ResponseFrame struct {
	Type    FrameType     `json:"type"`
	Target  types.Provider `json:"target"`
	Content string        `json:"content,omitempty"`
	Start   bool          `json:"start,omitempty"`
	End     bool          `json:"end,omitempty"`
	Summary bool          `json:"summary,omitempty"`
}

// ErrorFrame is the generic error reply (spec §7: BadRequest -> single
// error frame, connection preserved).
type ErrorFrame struct {
	Type    FrameType      `json:"type"`
	Message string         `json:"message"`
	Target  types.Provider `json:"target,omitempty"`
}

func errorFrame(message string, target types.Provider) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message, Target: target}
}
