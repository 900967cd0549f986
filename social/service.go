package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the friend-request lifecycle. Every transition out of
// pending goes through a conditional update on the request row, so two
// concurrent attempts resolve to exactly one winner.
type Service struct {
	db     *gorm.DB
	notify *notify.Service
	logger *zap.Logger
}

// NewService creates a social Service.
func NewService(db *gorm.DB, n *notify.Service, logger *zap.Logger) *Service {
	return &Service{db: db, notify: n, logger: logger}
}

// SendRequest creates a pending friend request from sender to receiver and
// notifies the receiver.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID int64) (*model.FriendRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}

	var sender, receiver model.User
	if err := s.db.WithContext(ctx).First(&sender, senderID).Error; err != nil {
		return nil, mapRecordErr(err)
	}
	if err := s.db.WithContext(ctx).First(&receiver, receiverID).Error; err != nil {
		return nil, mapRecordErr(err)
	}

	var pending int64
	if err := s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, model.RequestPending).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrDuplicatePending
	}

	friends, err := s.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	req := &model.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.RequestPending,
	}
	n := &model.Notification{
		RecipientID: receiverID,
		SenderID:    &senderID,
		Text:        fmt.Sprintf("%s sent you a friend request", sender.DisplayName()),
		Type:        model.NotifyFriendRequest,
		AutoDelete:  true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A terminal request for the same ordered pair would trip the
		// uniqueness invariant; it is history, not a blocker.
		if err := tx.Where("sender_id = ? AND receiver_id = ? AND status <> ?",
			senderID, receiverID, model.RequestPending).
			Delete(&model.FriendRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		n.RelatedRequestID = &req.ID
		return s.notify.CreateTx(tx, n)
	})
	if err != nil {
		return nil, err
	}

	s.notify.Push(ctx, n)
	return req, nil
}

// AcceptRequest transitions a pending request to accepted. The status
// flip, the bidirectional friendship pair, and the notification swap are
// one atomic unit; partial application is a bug, not a degraded state.
func (s *Service) AcceptRequest(ctx context.Context, requestID, actingUserID int64) error {
	req, err := s.loadActionable(ctx, requestID, actingUserID)
	if err != nil {
		return err
	}

	var receiver model.User
	if err := s.db.WithContext(ctx).First(&receiver, req.ReceiverID).Error; err != nil {
		return mapRecordErr(err)
	}

	n := &model.Notification{
		RecipientID:      req.SenderID,
		SenderID:         &req.ReceiverID,
		RelatedRequestID: &req.ID,
		Text:             fmt.Sprintf("%s accepted your friend request", receiver.DisplayName()),
		Type:             model.NotifyFriendRequestAccepted,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, requestID, model.RequestAccepted); err != nil {
			return err
		}
		// Pair write: one logical relationship, two directed rows.
		// Existing rows are left untouched (the (user, friend) unique
		// index makes the write idempotent).
		for _, edge := range []model.Friendship{
			{UserID: req.SenderID, FriendID: req.ReceiverID, Status: model.FriendshipActive},
			{UserID: req.ReceiverID, FriendID: req.SenderID, Status: model.FriendshipActive},
		} {
			e := edge
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&e).Error; err != nil {
				return err
			}
		}
		// The original prompt is superseded by the accept.
		if err := s.notify.DeleteForRequestTx(tx, req.ID, model.NotifyFriendRequest); err != nil {
			return err
		}
		return s.notify.CreateTx(tx, n)
	})
	if errors.Is(err, errConflict) {
		return s.resolveConflict(ctx, requestID)
	}
	if err != nil {
		return err
	}

	s.notify.Push(ctx, n)
	return nil
}

// RejectRequest transitions a pending request to rejected and notifies the
// original sender. The ledger is untouched.
func (s *Service) RejectRequest(ctx context.Context, requestID, actingUserID int64) error {
	req, err := s.loadActionable(ctx, requestID, actingUserID)
	if err != nil {
		return err
	}

	var receiver model.User
	if err := s.db.WithContext(ctx).First(&receiver, req.ReceiverID).Error; err != nil {
		return mapRecordErr(err)
	}

	n := &model.Notification{
		RecipientID:      req.SenderID,
		SenderID:         &req.ReceiverID,
		RelatedRequestID: &req.ID,
		Text:             fmt.Sprintf("%s rejected your friend request", receiver.DisplayName()),
		Type:             model.NotifyFriendRequestRejected,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, requestID, model.RequestRejected); err != nil {
			return err
		}
		return s.notify.CreateTx(tx, n)
	})
	if errors.Is(err, errConflict) {
		return s.resolveConflict(ctx, requestID)
	}
	if err != nil {
		return err
	}

	s.notify.Push(ctx, n)
	return nil
}

// RemoveFriend deletes both active edges between the pair and any accepted
// request, so a later SendRequest starts clean. Removing a non-existent
// friendship is not an error.
func (s *Service) RemoveFriend(ctx context.Context, userID, otherUserID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(
			"((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)) AND status = ?",
			userID, otherUserID, otherUserID, userID, model.FriendshipActive).
			Delete(&model.Friendship{}).Error; err != nil {
			return err
		}
		return tx.Where(
			"((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND status = ?",
			userID, otherUserID, otherUserID, userID, model.RequestAccepted).
			Delete(&model.FriendRequest{}).Error
	})
}

// ListPending returns the requests awaiting action by the receiver,
// newest first.
func (s *Service) ListPending(ctx context.Context, receiverID int64) ([]model.FriendRequest, error) {
	var out []model.FriendRequest
	err := s.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, model.RequestPending).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// MarkRequestRead flags a pending request as seen by its receiver.
func (s *Service) MarkRequestRead(ctx context.Context, requestID, receiverID int64) error {
	res := s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("id = ? AND receiver_id = ?", requestID, receiverID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// loadActionable fetches a request and checks the accept/reject
// preconditions: it must exist, be pending, and belong to the actor.
func (s *Service) loadActionable(ctx context.Context, requestID, actingUserID int64) (*model.FriendRequest, error) {
	var req model.FriendRequest
	if err := s.db.WithContext(ctx).First(&req, requestID).Error; err != nil {
		return nil, mapRecordErr(err)
	}
	if req.ReceiverID != actingUserID {
		return nil, ErrNotFound
	}
	if req.Status != model.RequestPending {
		return nil, ErrInvalidTransition
	}
	return &req, nil
}

// transition flips a request out of pending only if it is still pending.
// RowsAffected == 0 means another transition won the race.
func (s *Service) transition(tx *gorm.DB, requestID int64, to string) error {
	res := tx.Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestPending).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errConflict
	}
	return nil
}

// resolveConflict re-reads a request after a lost transition race and
// reports the losing side's view.
func (s *Service) resolveConflict(ctx context.Context, requestID int64) error {
	var req model.FriendRequest
	if err := s.db.WithContext(ctx).First(&req, requestID).Error; err != nil {
		return mapRecordErr(err)
	}
	if req.Status != model.RequestPending {
		return ErrInvalidTransition
	}
	// Still pending after a failed conditional update should not happen;
	// report it as absent rather than surfacing a raw conflict.
	s.logger.Warn("transition conflict on still-pending request",
		zap.Int64("request_id", requestID))
	return ErrNotFound
}

func mapRecordErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
