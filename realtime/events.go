package realtime

import (
	"context"
	"encoding/json"
)

// Client-facing event type names.
const (
	EventInitialStatuses = "initial_statuses"
	EventStatusUpdate    = "status_update"
	EventNotification    = "notification"
	EventChatMessage     = "chat_message"
)

// InitialStatusesEvent is sent once to a newly connected client with a
// snapshot of everyone currently online, keyed by user ID.
type InitialStatusesEvent struct {
	Type     string      `json:"type"`
	Statuses interface{} `json:"statuses"`
}

// StatusUpdateEvent announces one user's presence change to the group.
type StatusUpdateEvent struct {
	Type       string      `json:"type"`
	UserID     int64       `json:"user_id"`
	StatusData interface{} `json:"status_data"`
}

// BroadcastStatus publishes a status_update event for the given user to
// every connected client across all instances. Delivery is best-effort.
func (h *Hub) BroadcastStatus(ctx context.Context, userID int64, statusData interface{}) error {
	data, err := json.Marshal(StatusUpdateEvent{
		Type:       EventStatusUpdate,
		UserID:     userID,
		StatusData: statusData,
	})
	if err != nil {
		return err
	}
	return h.Broadcast(ctx, data)
}
