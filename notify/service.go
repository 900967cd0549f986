package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a notification does not exist or belongs
// to a different recipient.
var ErrNotFound = errors.New("notify: notification not found")

// Service is the append-only, per-recipient notification store. Writes go
// to the database; online recipients additionally get a realtime push.
type Service struct {
	db     *gorm.DB
	hub    *realtime.Hub // nil disables realtime pushes
	logger *zap.Logger
}

// NewService creates a notification Service.
func NewService(db *gorm.DB, hub *realtime.Hub, logger *zap.Logger) *Service {
	return &Service{db: db, hub: hub, logger: logger}
}

// Create appends a notification and pushes it to the recipient's live
// sessions. The push is best-effort; the row is the source of truth.
func (s *Service) Create(ctx context.Context, n *model.Notification) error {
	if err := s.CreateTx(s.db.WithContext(ctx), n); err != nil {
		return err
	}
	s.Push(ctx, n)
	return nil
}

// CreateTx appends a notification inside an existing transaction.
// The caller pushes after commit.
func (s *Service) CreateTx(tx *gorm.DB, n *model.Notification) error {
	return tx.Create(n).Error
}

// DeleteForRequestTx removes notifications of the given type tied to a
// friend request. Used when a transition supersedes the original prompt.
func (s *Service) DeleteForRequestTx(tx *gorm.DB, requestID int64, notifType string) error {
	return tx.Where("related_request_id = ? AND type = ?", requestID, notifType).
		Delete(&model.Notification{}).Error
}

// Push publishes a notification event to the recipient's live sessions.
func (s *Service) Push(ctx context.Context, n *model.Notification) {
	if s.hub == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":         "notification",
		"notification": n,
	})
	if err != nil {
		return
	}
	if err := s.hub.SendToUser(ctx, n.RecipientID, data); err != nil {
		s.logger.Warn("notification push failed",
			zap.Int64("recipient_id", n.RecipientID), zap.Error(err))
	}
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID int64) ([]model.Notification, error) {
	var out []model.Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// MarkRead acknowledges one notification. Auto-delete rows are removed
// outright; their purpose was purely transient delivery.
func (s *Service) MarkRead(ctx context.Context, id, recipientID int64) error {
	var n model.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if n.AutoDelete {
		return s.db.WithContext(ctx).Delete(&n).Error
	}
	return s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

// MarkAllRead bulk-acknowledges the recipient's unread notifications.
// Auto-delete rows are exempt: those are deleted individually on
// acknowledgement, never in bulk, so a pending prompt is not silently
// discarded. Returns the number of rows updated.
func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND auto_delete = ?", recipientID, false, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// UnreadCount returns the recipient's unread notification count.
func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// Delete removes a notification owned by the recipient.
func (s *Service) Delete(ctx context.Context, id, recipientID int64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&model.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeRead deletes read, non-transient notifications older than the
// retention window. Run by the scheduler. Returns rows removed.
func (s *Service) PurgeRead(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("is_read = ? AND auto_delete = ? AND created_at < ?", true, false, cutoff).
		Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}
