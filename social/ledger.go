package social

import (
	"context"
	"errors"
	"time"

	"github.com/linkupchat/linkup/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendshipStatus is the answer to "what is the relation between a and b,
// seen from a". A missing edge is the valid not_friends answer.
type FriendshipStatus struct {
	Status      string     `json:"status"`
	Since       *time.Time `json:"since,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	IsBlocked   bool       `json:"is_blocked"`
	BlockedBy   *int64     `json:"blocked_by,omitempty"`
}

// AreFriends reports whether the edge rooted at a toward b is active.
func (s *Service) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id = ? AND friend_id = ? AND status = ?", a, b, model.FriendshipActive).
		Count(&count).Error
	return count > 0, err
}

// FriendsOf returns the users reachable via active edges rooted at userID.
// No ordering guarantee; callers re-sort as needed.
func (s *Service) FriendsOf(ctx context.Context, userID int64) ([]model.User, error) {
	var out []model.User
	err := s.db.WithContext(ctx).
		Where("id IN (?)",
			s.db.Model(&model.Friendship{}).
				Select("friend_id").
				Where("user_id = ? AND status = ?", userID, model.FriendshipActive)).
		Find(&out).Error
	return out, err
}

// Status resolves the friendship status of the edge rooted at userID
// toward otherUserID.
func (s *Service) Status(ctx context.Context, userID, otherUserID int64) (*FriendshipStatus, error) {
	var edge model.Friendship
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ?", userID, otherUserID).
		First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &FriendshipStatus{Status: model.FriendshipNone}, nil
	}
	if err != nil {
		return nil, err
	}
	return &FriendshipStatus{
		Status:      edge.Status,
		Since:       &edge.CreatedAt,
		LastUpdated: &edge.UpdatedAt,
		IsBlocked:   edge.Status == model.FriendshipBlocked,
		BlockedBy:   edge.BlockedBy,
	}, nil
}

// Block marks both edges of the pair blocked and records who blocked.
// Missing edges are created so a block does not require prior friendship.
func (s *Service) Block(ctx context.Context, blockerID, targetID int64) error {
	if blockerID == targetID {
		return ErrSelfRequest
	}
	var target model.User
	if err := s.db.WithContext(ctx).First(&target, targetID).Error; err != nil {
		return mapRecordErr(err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pair := range [][2]int64{{blockerID, targetID}, {targetID, blockerID}} {
			edge := model.Friendship{
				UserID:   pair[0],
				FriendID: pair[1],
				Status:   model.FriendshipBlocked,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
				return err
			}
			if err := tx.Model(&model.Friendship{}).
				Where("user_id = ? AND friend_id = ?", pair[0], pair[1]).
				Updates(map[string]interface{}{
					"status":     model.FriendshipBlocked,
					"blocked_by": blockerID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Unblock restores both edges to active and clears blocked_by. Only the
// user who placed the block can lift it.
func (s *Service) Unblock(ctx context.Context, blockerID, targetID int64) error {
	res := s.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)) AND status = ? AND blocked_by = ?",
			blockerID, targetID, targetID, blockerID,
			model.FriendshipBlocked, blockerID).
		Updates(map[string]interface{}{
			"status":     model.FriendshipActive,
			"blocked_by": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetNote stores a private note on the edge rooted at userID.
func (s *Service) SetNote(ctx context.Context, userID, friendID int64, note string) error {
	res := s.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		Update("notes", note)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
