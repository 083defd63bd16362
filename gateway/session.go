package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/budget"
	"github.com/BaSui01/agentflow/concurrency"
	"github.com/BaSui01/agentflow/ctxstore"
	"github.com/BaSui01/agentflow/eventbus"
	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/registry"
	"github.com/BaSui01/agentflow/types"
	"github.com/BaSui01/agentflow/workflow"
)

// ConnState is one connection's position in the gateway state machine
// (spec §4.10: Connecting -> Authenticated -> Active -> Closed, plus
// Authenticated -> Degraded when the context store is unavailable).
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateDegraded
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// livenessInterval and maxMissedPongs implement the 30s ping / two-miss
// disconnect rule (spec §4.10).
const (
	livenessInterval = 30 * time.Second
	maxMissedPongs   = 2
)

// Deps bundles the process-wide components a Session needs to route
// inbound frames, constructed once at startup and shared across every
// connection.
type Deps struct {
	Registry    *registry.Registry
	KeyStore    *registry.KeyStore
	Factory     registry.Factory
	CtxStore    *ctxstore.Store
	Daily       *budget.DailyAggregate
	Bus         *eventbus.Bus
	Engine      *workflow.Engine
	Canary      *registry.CanaryRouter
	JWTSecret   []byte
	Logger      *zap.Logger
}

// Session is one authenticated WebSocket connection.
type Session struct {
	conn   *websocket.Conn
	deps   Deps
	logger *zap.Logger

	mu           sync.Mutex
	state        ConnState
	userID       string
	sessionID    string
	collabMode   types.WorkflowMode
	collabStyle  string
	maxContext   int
	capUSD       float64
	dailyCapUSD  float64
	missedPongs  int
	cancelActive context.CancelFunc
}

// NewSession wraps an accepted WebSocket connection.
func NewSession(conn *websocket.Conn, sessionID string, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		conn:       conn,
		deps:       deps,
		logger:     logger.With(zap.String("component", "gateway.session"), zap.String("session_id", sessionID)),
		state:      StateConnecting,
		sessionID:  sessionID,
		collabMode: types.ModeRoundTable,
		maxContext: ctxstore.DefaultMaxContextSize,
	}
}

// Serve reads frames until the connection closes or ctx is cancelled,
// running the liveness ping loop alongside it.
func (s *Session) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.SessionOpened()
	defer metrics.SessionClosed()

	go s.livenessLoop(ctx)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.logger.Info("connection closed", zap.Error(err))
			s.setState(StateClosed)
			return
		}
		s.handleFrame(ctx, data)
	}
}

func (s *Session) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.mu.Lock()
				s.missedPongs++
				missed := s.missedPongs
				s.mu.Unlock()
				if missed >= maxMissedPongs {
					s.logger.Warn("liveness check failed twice, closing connection")
					_ = s.conn.Close(websocket.StatusGoingAway, "liveness timeout")
					return
				}
				continue
			}
			s.mu.Lock()
			s.missedPongs = 0
			s.mu.Unlock()
		}
	}
}

func (s *Session) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) currentState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	var env InboundFrame
	if err := json.Unmarshal(data, &env); err != nil {
		s.writeJSON(ctx, errorFrame("malformed frame", ""))
		return
	}

	if env.Type != FrameAuthenticate && env.Type != FramePing && s.currentState() == StateConnecting {
		s.writeJSON(ctx, errorFrame("authenticate first", ""))
		return
	}

	switch env.Type {
	case FrameAuthenticate:
		s.handleAuthenticate(ctx, env.Payload)
	case FramePing, FrameDebugPing:
		s.writeJSON(ctx, map[string]FrameType{"type": FramePong})
	case FrameChat:
		s.handleChat(ctx, env.Payload)
	case FrameSetCollabMode:
		var p SetCollabModePayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			s.mu.Lock()
			s.collabMode = p.Mode
			s.mu.Unlock()
		}
	case FrameSetCollabStyle:
		var p SetCollabStylePayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			s.mu.Lock()
			s.collabStyle = p.Style
			s.mu.Unlock()
		}
	case FrameCancelCollab:
		s.mu.Lock()
		if s.cancelActive != nil {
			s.cancelActive()
		}
		s.mu.Unlock()
	case FrameContextStatus:
		ctxState := s.deps.CtxStore.GetOrCreate(s.sessionID)
		s.writeJSON(ctx, map[string]any{"type": FrameCostInfo, "contextSize": ctxState.ContextSize, "maxContextSize": ctxState.MaxContextSize, "mode": ctxState.Mode})
	case FrameResetContext:
		s.deps.CtxStore.Reset(s.sessionID)
	case FrameTrimContext:
		removed := s.deps.CtxStore.Trim(s.sessionID)
		s.writeJSON(ctx, map[string]any{"type": FrameProgressUpdate, "trimmed": removed})
	case FrameSetMaxContextSize:
		var p SetMaxContextSizePayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			s.deps.CtxStore.SetMaxSize(s.sessionID, p.MaxSize)
		}
	case FrameSetContextMode:
		var p SetContextModePayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			s.deps.CtxStore.SetMode(s.sessionID, p.Mode)
		}
	case FrameGetSessionCost:
		s.writeJSON(ctx, map[string]any{"type": FrameSessionCost, "capUSD": s.capUSD})
	case FrameGetDailyCost:
		spend, err := s.deps.Daily.CurrentSpend(ctx, s.userID)
		if err != nil {
			s.writeJSON(ctx, errorFrame("daily cost unavailable", ""))
			return
		}
		s.writeJSON(ctx, map[string]any{"type": FrameDailyCost, "spentUSD": spend})
	case FrameSetBudgetLimit:
		var p SetBudgetLimitPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			s.mu.Lock()
			s.capUSD, s.dailyCapUSD = p.CapUSD, p.DailyCapUSD
			s.mu.Unlock()
			s.writeJSON(ctx, map[string]any{"type": FrameBudgetLimitSet})
		}
	case FrameCommand:
		s.writeJSON(ctx, errorFrame("external CLI collaborator not configured", ""))
	default:
		s.logger.Info("unknown frame type", zap.String("type", string(env.Type)))
		s.writeJSON(ctx, errorFrame(fmt.Sprintf("unknown message type %q", env.Type), ""))
	}
}

// handleAuthenticate resolves the calling user's ID from the
// `authenticate` frame (spec §6: `{type:"authenticate", userId:<string>}`),
// clears the provider client registry cache for that user (spec §4.10:
// "on authentication, clear the cache to pick up updated keys"), and
// transitions Connecting -> Authenticated. A caller may additionally
// supply a bearer `token`; when present it must verify and its `userId`
// claim is used in place of the plain field, so a forged frame can't
// claim someone else's id just by setting the userId field.
func (s *Session) handleAuthenticate(ctx context.Context, payload json.RawMessage) {
	var p AuthenticatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.writeJSON(ctx, errorFrame("malformed authenticate frame", ""))
		return
	}

	userID := p.UserID
	if p.Token != "" {
		token, err := jwt.Parse(p.Token, func(t *jwt.Token) (any, error) {
			return s.deps.JWTSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			s.writeJSON(ctx, errorFrame("authentication failed", ""))
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			s.writeJSON(ctx, errorFrame("authentication failed", ""))
			return
		}
		userID, _ = claims["userId"].(string)
	}
	if userID == "" {
		s.writeJSON(ctx, errorFrame("authentication failed", ""))
		return
	}

	s.mu.Lock()
	s.userID = userID
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.deps.Registry.Invalidate(userID)
	s.writeJSON(ctx, map[string]any{"type": FrameModelStatus, "status": "authenticated"})
}

func (s *Session) writeJSON(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal outbound frame", zap.Error(err))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		s.logger.Warn("failed to write outbound frame", zap.Error(err))
	}
}
