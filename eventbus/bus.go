// Package eventbus implements the session-scoped event bus (C5): a
// publish/subscribe fan-out keyed by `collab:<sessionId>`, delivering
// at-least-once to every subscriber with monotonic timestamps.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/internal/channel"
	"github.com/BaSui01/agentflow/types"
)

// Bus fans events out to every subscriber of a session channel. Built on
// the teacher's internal/channel.TunableChannel for the per-subscriber
// buffer (channel.DefaultTunableConfig's initial size). The bus never
// resizes that buffer: once a subscriber's buffer is full, Publish blocks
// until it drains or ctx ends.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]*channel.TunableChannel[types.Event]
	nextID      int
	logger      *zap.Logger
	lastStamp   time.Time // monotonic timestamp floor, see nextTimestamp
}

// New creates an empty event bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string]map[int]*channel.TunableChannel[types.Event]),
		logger:      logger.With(zap.String("component", "eventbus")),
	}
}

func channelKey(sessionID string) string { return "collab:" + sessionID }

// Subscribe registers a new subscriber for a session and returns its
// event channel plus an unsubscribe func. Multiple subscribers (e.g. a
// gateway connection and a metrics sink) may subscribe to the same
// session concurrently.
func (b *Bus) Subscribe(sessionID string) (<-chan types.Event, func()) {
	key := channelKey(sessionID)
	tc := channel.NewTunableChannel[types.Event](channel.DefaultTunableConfig())

	b.mu.Lock()
	if b.subscribers[key] == nil {
		b.subscribers[key] = make(map[int]*channel.TunableChannel[types.Event])
	}
	id := b.nextID
	b.nextID++
	b.subscribers[key][id] = tc
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[key]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subscribers, key)
			}
		}
	}
	return tc.Chan(), unsubscribe
}

// Publish delivers an event to every subscriber of its session,
// at-least-once: a full/blocked subscriber buffer is still sent to via a
// blocking Send bounded by ctx, so delivery is never silently dropped —
// a slow consumer applies backpressure to the publisher rather than
// losing events.
func (b *Bus) Publish(ctx context.Context, event types.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Timestamp = b.nextTimestamp()

	key := channelKey(event.SessionID)
	b.mu.RLock()
	subs := make([]*channel.TunableChannel[types.Event], 0, len(b.subscribers[key]))
	for _, tc := range b.subscribers[key] {
		subs = append(subs, tc)
	}
	b.mu.RUnlock()

	for _, tc := range subs {
		if err := tc.Send(ctx, event); err != nil {
			b.logger.Warn("event delivery aborted", zap.String("session_id", event.SessionID), zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
}

// nextTimestamp returns a strictly monotonic wall-clock timestamp: if
// two events publish within the same clock tick, the second is bumped by
// a nanosecond so two events can never carry an identical ISO-8601
// timestamp on the wire.
func (b *Bus) nextTimestamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(b.lastStamp) {
		now = b.lastStamp.Add(time.Nanosecond)
	}
	b.lastStamp = now
	return now
}

// CloseSession removes every subscriber for a session, called once the
// gateway connection that owns it closes (spec §8 Open Question #3:
// collaborations are session-bound, not resumable).
func (b *Bus) CloseSession(sessionID string) {
	key := channelKey(sessionID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tc := range b.subscribers[key] {
		tc.Close()
	}
	delete(b.subscribers, key)
}
