package ws

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/linkupchat/linkup/chat"
	"github.com/linkupchat/linkup/realtime"
)

// ChatHandlers handles chat WebSocket messages.
type ChatHandlers struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewChatHandlers creates ChatHandlers.
func NewChatHandlers(s *chat.Service, logger *zap.Logger) *ChatHandlers {
	return &ChatHandlers{chat: s, logger: logger}
}

// RegisterHandlers registers chat WS handlers.
func (h *ChatHandlers) RegisterHandlers(r *Router) {
	r.On(realtime.EventChatMessage, h.HandleChatMessage)
}

type chatMessagePayload struct {
	RoomID     int64          `json:"room_id"`
	Content    string         `json:"content"`
	Attachment datatypes.JSON `json:"attachment"`
}

// HandleChatMessage persists a message and fans it out to room members.
func (h *ChatHandlers) HandleChatMessage(ctx context.Context, s *realtime.Session, raw json.RawMessage) error {
	var req chatMessagePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	if req.RoomID == 0 || req.Content == "" {
		replyError(s, "invalid_message")
		return nil
	}

	_, err := h.chat.PostMessage(ctx, req.RoomID, s.UserID, req.Content, req.Attachment)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotMember):
			replyError(s, "not_a_member")
			return nil
		case errors.Is(err, chat.ErrNotFound):
			replyError(s, "room_not_found")
			return nil
		}
		return err
	}
	return nil
}
