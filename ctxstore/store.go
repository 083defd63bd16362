// Package ctxstore implements the context store (C8): per-session message
// history with character-counted trimming, mode-aware prompt formatting,
// and gorm-backed persistence, grounded on agent/context/window.go's
// sliding-window trim idiom and llm/db_init.go's AutoMigrate pattern.
package ctxstore

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentflow/types"
)

// DefaultMaxContextSize is applied when a session does not set one,
// counted in characters (spec §3/§4.8: contextSize is a running
// character count of Messages).
const DefaultMaxContextSize = 16000

// trimTargetRatio is the fraction of MaxContextSize trim leaves the
// context at, per spec §4.8.
const trimTargetRatio = 0.9

// storedMessage is the gorm-mapped row for one persisted context message.
type storedMessage struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;not null"`
	Seq       int    `gorm:"index"`
	Role      string
	Provider  string
	Content   string
	CreatedAt int64
}

func (storedMessage) TableName() string { return "collab_context_messages" }

// sessionMeta is the gorm-mapped row for one session's mode/size settings.
type sessionMeta struct {
	SessionID      string `gorm:"primaryKey"`
	Mode           string
	MaxContextSize int
}

func (sessionMeta) TableName() string { return "collab_context_sessions" }

// Migrate creates/updates the context store's tables. Call once at
// startup against a *gorm.DB opened with either gorm.io/driver/sqlite or
// gorm.io/driver/postgres.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&storedMessage{}, &sessionMeta{}); err != nil {
		return fmt.Errorf("ctxstore: automigrate: %w", err)
	}
	return nil
}

// Store manages every session's CollabContext, persisting mutations to
// db and caching the live working set in memory so formatForPrompt does
// not round-trip to the database on every call.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*types.CollabContext
}

// New creates a context store backed by db.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:       db,
		logger:   logger.With(zap.String("component", "ctxstore")),
		sessions: make(map[string]*types.CollabContext),
	}
}

// GetOrCreate returns the session's context, creating and persisting a
// fresh one on first use.
func (s *Store) GetOrCreate(sessionID string) *types.CollabContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.sessions[sessionID]; ok {
		return c
	}

	c := &types.CollabContext{
		SessionID:      sessionID,
		Mode:           types.ContextModeFull,
		MaxContextSize: DefaultMaxContextSize,
	}
	s.sessions[sessionID] = c

	if s.db != nil {
		meta := sessionMeta{SessionID: sessionID, Mode: string(c.Mode), MaxContextSize: c.MaxContextSize}
		if err := s.db.Where(sessionMeta{SessionID: sessionID}).FirstOrCreate(&meta).Error; err != nil {
			s.logger.Warn("failed to persist session metadata", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			c.Mode = types.ContextMode(meta.Mode)
			c.MaxContextSize = meta.MaxContextSize
		}
	}
	return c
}

// NearLimitSignal is the warning payload forwarded by the session gateway
// after any add that crosses the 0.8 utilization threshold (spec §4.8).
type NearLimitSignal struct {
	IsNearLimit bool
	PercentUsed float64
}

// addMessage appends one message, updates contextSize, and trims if the
// context has grown past its max.
func (s *Store) addMessage(sessionID string, role types.Role, provider types.Provider, content string) NearLimitSignal {
	s.GetOrCreate(sessionID)
	s.mu.Lock()
	c := s.mustGet(sessionID)
	msg := types.Message{Role: role, Content: content}
	c.Messages = append(c.Messages, msg)
	c.ContextSize += len(content)
	s.mu.Unlock()

	if s.db != nil {
		row := storedMessage{SessionID: sessionID, Seq: len(c.Messages) - 1, Role: string(role), Provider: string(provider), Content: content}
		if err := s.db.Create(&row).Error; err != nil {
			s.logger.Warn("failed to persist context message", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	if c.ContextSize > c.MaxContextSize {
		s.Trim(sessionID)
	}

	return NearLimitSignal{IsNearLimit: c.NearLimit(), PercentUsed: c.Utilization() * 100}
}

// AddUserMessage records a user turn.
func (s *Store) AddUserMessage(sessionID, content string) NearLimitSignal {
	return s.addMessage(sessionID, types.RoleUser, "", content)
}

// AddAssistantResponse records one provider's contribution.
func (s *Store) AddAssistantResponse(sessionID string, provider types.Provider, content string) NearLimitSignal {
	return s.addMessage(sessionID, types.RoleAssistant, provider, content)
}

// Reset clears a session's history back to empty, per spec §8 invariant 6
// (messageCount == 0 && contextSize == 0 after reset).
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	c := s.mustGet(sessionID)
	c.Messages = nil
	c.ContextSize = 0
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Where("session_id = ?", sessionID).Delete(&storedMessage{}).Error; err != nil {
			s.logger.Warn("failed to clear persisted context", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// Trim removes the oldest messages one at a time until contextSize is at
// most trimTargetRatio * maxContextSize, returning the count removed.
func (s *Store) Trim(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.mustGet(sessionID)

	target := int(float64(c.MaxContextSize) * trimTargetRatio)
	removed := 0
	for c.ContextSize > target && len(c.Messages) > 0 {
		oldest := c.Messages[0]
		c.Messages = c.Messages[1:]
		c.ContextSize -= len(oldest.Content)
		removed++
	}
	if c.ContextSize < 0 {
		c.ContextSize = 0
	}
	return removed
}

// SetMode changes a session's context embedding mode.
func (s *Store) SetMode(sessionID string, mode types.ContextMode) {
	s.mu.Lock()
	c := s.mustGet(sessionID)
	c.Mode = mode
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Model(&sessionMeta{}).Where("session_id = ?", sessionID).Update("mode", string(mode)).Error; err != nil {
			s.logger.Warn("failed to persist context mode", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// SetMaxSize changes a session's max context size. Values below 1000 are
// clamped up to 1000, per spec §4.8's invariant maxContextSize >= 1000.
func (s *Store) SetMaxSize(sessionID string, maxSize int) {
	if maxSize < 1000 {
		maxSize = 1000
	}
	s.mu.Lock()
	c := s.mustGet(sessionID)
	c.MaxContextSize = maxSize
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Model(&sessionMeta{}).Where("session_id = ?", sessionID).Update("max_context_size", maxSize).Error; err != nil {
			s.logger.Warn("failed to persist max context size", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// FormatForPrompt renders a session's history for embedding in a prompt,
// per the mode contract in spec §4.8.
func (s *Store) FormatForPrompt(sessionID string) string {
	s.mu.Lock()
	c := s.mustGet(sessionID)
	mode := c.Mode
	msgs := append([]types.Message(nil), c.Messages...)
	maxSize := c.MaxContextSize
	s.mu.Unlock()

	switch mode {
	case types.ContextModeNone:
		return ""
	case types.ContextModeSummary:
		return formatSummary(msgs, maxSize)
	default:
		return formatFull(msgs)
	}
}

func formatFull(msgs []types.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

// formatSummary keeps the most recent messages verbatim and replaces
// everything older with a single synthesized paragraph, so the output
// always fits within maxSize regardless of how much history exists.
func formatSummary(msgs []types.Message, maxSize int) string {
	const recentWindow = 6
	if len(msgs) <= recentWindow {
		return formatFull(msgs)
	}

	older, recent := msgs[:len(msgs)-recentWindow], msgs[len(msgs)-recentWindow:]

	var b strings.Builder
	fmt.Fprintf(&b, "[summary of %d earlier message(s)] ", len(older))
	for i, m := range older {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s said: %s", m.Role, firstSentence(m.Content))
	}
	b.WriteString("\n")
	b.WriteString(formatFull(recent))

	out := b.String()
	if len(out) > maxSize {
		out = out[:maxSize]
	}
	return out
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".!?\n"); idx >= 0 && idx < 160 {
		return s[:idx+1]
	}
	if len(s) > 160 {
		return s[:160] + "…"
	}
	return s
}

func (s *Store) mustGet(sessionID string) *types.CollabContext {
	c, ok := s.sessions[sessionID]
	if !ok {
		c = &types.CollabContext{SessionID: sessionID, Mode: types.ContextModeFull, MaxContextSize: DefaultMaxContextSize}
		s.sessions[sessionID] = c
	}
	return c
}
