package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/linkupchat/linkup/cache"
	"go.uber.org/zap"
)

// GroupStatusUpdates is the pub/sub channel carrying all realtime events
// for the status-updates group. Every server instance subscribes to it, so
// fan-out reaches subscribers regardless of which process holds their
// connection.
const GroupStatusUpdates = "status_updates"

// envelope is the wire format on the pub/sub channel. Recipient 0 means
// the whole group; otherwise only that user's sessions receive Data.
type envelope struct {
	Recipient int64           `json:"recipient,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Hub maintains the local sessions of the status-updates group and bridges
// them to the shared pub/sub channel.
type Hub struct {
	pubsub cache.PubSub
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session // userID → session

	unsub func()
}

// NewHub creates a Hub. Call Start before registering sessions.
func NewHub(ps cache.PubSub, logger *zap.Logger) *Hub {
	return &Hub{
		pubsub:   ps,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

// Start subscribes to the group channel and begins fanning received
// events out to local sessions.
func (h *Hub) Start(ctx context.Context) error {
	msgCh, unsub, err := h.pubsub.Subscribe(ctx, GroupStatusUpdates)
	if err != nil {
		return err
	}
	h.unsub = unsub
	go h.fanout(msgCh)
	return nil
}

// Close unsubscribes from the group channel and closes all sessions.
func (h *Hub) Close() {
	if h.unsub != nil {
		h.unsub()
	}
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[int64]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (h *Hub) fanout(msgCh <-chan *cache.Message) {
	for msg := range msgCh {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.logger.Warn("malformed hub envelope", zap.Error(err))
			continue
		}
		if env.Recipient != 0 {
			h.mu.RLock()
			s := h.sessions[env.Recipient]
			h.mu.RUnlock()
			if s != nil {
				s.SendRaw(env.Data)
			}
			continue
		}
		h.mu.RLock()
		sessions := make([]*Session, 0, len(h.sessions))
		for _, s := range h.sessions {
			sessions = append(sessions, s)
		}
		h.mu.RUnlock()
		// Per-session delivery is fire-and-forget: SendRaw drops on a
		// full buffer rather than blocking the remaining subscribers.
		for _, s := range sessions {
			s.SendRaw(env.Data)
		}
	}
}

// Register adds a session. A previous session for the same user is closed
// first (duplicate login / rapid reconnect).
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[s.UserID]; ok {
		old.Close()
		h.logger.Info("duplicate session displaced", zap.Int64("user_id", s.UserID))
	}
	h.sessions[s.UserID] = s
	h.logger.Info("session registered", zap.Int64("user_id", s.UserID))
}

// Unregister removes the session if it is still the current one for its
// user. A displaced session disconnecting later must not evict its
// replacement.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.UserID]; ok && cur == s {
		delete(h.sessions, s.UserID)
		h.logger.Info("session unregistered", zap.Int64("user_id", s.UserID))
	}
}

// Session returns the local session for a user, or nil.
func (h *Hub) Session(userID int64) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// IsConnected reports whether a user has a live session on this instance.
func (h *Hub) IsConnected(userID int64) bool {
	return h.Session(userID) != nil
}

// Count returns the number of locally connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// LocalUserIDs returns a snapshot of the locally connected user IDs.
func (h *Hub) LocalUserIDs() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int64, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast publishes data to every subscriber in the group, on every
// instance, including the publisher's own sessions.
func (h *Hub) Broadcast(ctx context.Context, data []byte) error {
	return h.publish(ctx, 0, data)
}

// SendToUser publishes data addressed to a single user's sessions,
// wherever they are connected.
func (h *Hub) SendToUser(ctx context.Context, userID int64, data []byte) error {
	return h.publish(ctx, userID, data)
}

func (h *Hub) publish(ctx context.Context, recipient int64, data []byte) error {
	payload, err := json.Marshal(&envelope{Recipient: recipient, Data: data})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, GroupStatusUpdates, string(payload))
}

// DecodeEnvelope unwraps a raw pub/sub payload from the group channel.
// It returns the addressed recipient (0 for the whole group) and the
// client-facing event bytes. Other subscribers of the channel, such as
// the SSE bridge, use this to apply the same routing rules as the hub.
func DecodeEnvelope(payload string) (int64, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return 0, nil, err
	}
	return env.Recipient, env.Data, nil
}
