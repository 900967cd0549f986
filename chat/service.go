package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/realtime"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a room or message does not exist.
	ErrNotFound = errors.New("chat: not found")
	// ErrNotMember is returned when a non-member posts to or reads a room.
	ErrNotMember = errors.New("chat: not a room member")
)

// Service manages chat rooms, membership and message history. Posted
// messages are fanned out to online room members through the hub.
type Service struct {
	db       *gorm.DB
	hub      *realtime.Hub // nil disables realtime fan-out
	pageSize int
	logger   *zap.Logger
}

// NewService creates a chat Service.
func NewService(db *gorm.DB, hub *realtime.Hub, pageSize int, logger *zap.Logger) *Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{db: db, hub: hub, pageSize: pageSize, logger: logger}
}

// CreateRoom creates a room with the creator as its first member.
func (s *Service) CreateRoom(ctx context.Context, creatorID int64, name, description string) (*model.ChatRoom, error) {
	room := &model.ChatRoom{Name: name, Description: description, CreatorID: creatorID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		return tx.Create(&model.RoomMember{RoomID: room.ID, UserID: creatorID}).Error
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListRooms returns all rooms, newest first.
func (s *Service) ListRooms(ctx context.Context) ([]model.ChatRoom, error) {
	var out []model.ChatRoom
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Join adds a user to a room. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, roomID, userID int64) error {
	var room model.ChatRoom
	if err := s.db.WithContext(ctx).First(&room, roomID).Error; err != nil {
		return mapRecordErr(err)
	}
	m := model.RoomMember{RoomID: roomID, UserID: userID}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
}

// Leave removes a user from a room. Leaving a room you are not in is not
// an error.
func (s *Service) Leave(ctx context.Context, roomID, userID int64) error {
	return s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.RoomMember{}).Error
}

// Members returns the user IDs of a room's members.
func (s *Service) Members(ctx context.Context, roomID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.RoomMember{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// IsMember reports room membership.
func (s *Service) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// PostMessage stores a message and pushes it to the room's online members.
func (s *Service) PostMessage(ctx context.Context, roomID, senderID int64, content string, attachment datatypes.JSON) (*model.Message, error) {
	member, err := s.IsMember(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !member {
		// Distinguish a room that doesn't exist from one the sender
		// simply hasn't joined.
		if err := s.db.WithContext(ctx).First(&model.ChatRoom{}, roomID).Error; err != nil {
			return nil, mapRecordErr(err)
		}
		return nil, ErrNotMember
	}

	msg := &model.Message{
		RoomID:     roomID,
		SenderID:   senderID,
		Content:    content,
		Attachment: attachment,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}

	s.push(ctx, msg)
	return msg, nil
}

// push fans a stored message out to the room's members. Best-effort: the
// row is the source of truth, delivery failures are logged and dropped.
func (s *Service) push(ctx context.Context, msg *model.Message) {
	if s.hub == nil {
		return
	}
	memberIDs, err := s.Members(ctx, msg.RoomID)
	if err != nil {
		s.logger.Warn("chat fan-out member lookup failed",
			zap.Int64("room_id", msg.RoomID), zap.Error(err))
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":    "chat_message",
		"message": msg,
	})
	if err != nil {
		return
	}
	for _, id := range memberIDs {
		if err := s.hub.SendToUser(ctx, id, data); err != nil {
			s.logger.Warn("chat fan-out failed",
				zap.Int64("room_id", msg.RoomID),
				zap.Int64("user_id", id),
				zap.Error(err))
		}
	}
}

// Messages returns a page of a room's history, newest first. A zero
// beforeID starts from the newest message.
func (s *Service) Messages(ctx context.Context, roomID, userID, beforeID int64) ([]model.Message, error) {
	member, err := s.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		if err := s.db.WithContext(ctx).First(&model.ChatRoom{}, roomID).Error; err != nil {
			return nil, mapRecordErr(err)
		}
		return nil, ErrNotMember
	}

	q := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(s.pageSize)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var out []model.Message
	err = q.Find(&out).Error
	return out, err
}

func mapRecordErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
