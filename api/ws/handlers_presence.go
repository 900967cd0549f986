package ws

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
)

// PresenceHandlers handles presence-related WebSocket messages.
type PresenceHandlers struct {
	registry *presence.Registry
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewPresenceHandlers creates PresenceHandlers.
func NewPresenceHandlers(registry *presence.Registry, hub *realtime.Hub, logger *zap.Logger) *PresenceHandlers {
	return &PresenceHandlers{registry: registry, hub: hub, logger: logger}
}

// RegisterHandlers registers presence WS handlers.
func (h *PresenceHandlers) RegisterHandlers(r *Router) {
	r.On(realtime.EventStatusUpdate, h.HandleStatusUpdate)
}

type statusUpdatePayload struct {
	Status string `json:"status"`
}

// HandleStatusUpdate applies a client-requested status change and
// announces it to the group. Unknown statuses are rejected quietly.
func (h *PresenceHandlers) HandleStatusUpdate(ctx context.Context, s *realtime.Session, raw json.RawMessage) error {
	var req statusUpdatePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}

	data, err := h.registry.SetStatus(ctx, s.UserID, req.Status)
	if err != nil {
		if errors.Is(err, presence.ErrInvalidStatus) {
			replyError(s, "invalid_status")
			return nil
		}
		return err
	}
	return h.hub.BroadcastStatus(ctx, s.UserID, data)
}

// replyError sends an error event back to one session only.
func replyError(s *realtime.Session, code string) {
	s.Send(map[string]interface{}{
		"type":  "error",
		"error": code,
	})
}
