package presence

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/linkupchat/linkup/cache"
	"github.com/linkupchat/linkup/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Shared store keys. Every server instance reads and writes the same set
// and hash, so the "who is online" view survives restarts and is
// consistent across horizontally scaled instances.
const (
	onlineSetKey  = "presence:online"
	statusHashKey = "presence:status"
)

var (
	// ErrInvalidStatus is returned for a status outside the fixed enum.
	ErrInvalidStatus = errors.New("presence: invalid status")
	// ErrNotFound is returned when the user does not exist.
	ErrNotFound = errors.New("presence: user not found")
)

// StatusData is the per-user presence snapshot sent to clients.
type StatusData struct {
	Status     string     `json:"status"`
	IsOnline   bool       `json:"is_online"`
	LastOnline *time.Time `json:"last_online"`
}

// Registry tracks connected users in the shared store and mirrors the
// durable status fields on the User row.
type Registry struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(db *gorm.DB, c cache.Cache, logger *zap.Logger) *Registry {
	return &Registry{db: db, cache: c, logger: logger}
}

// MarkOnline adds the user to the online set and records online status on
// the durable row. Returns the resulting status data for broadcasting.
func (r *Registry) MarkOnline(ctx context.Context, userID int64) (*StatusData, error) {
	sd, err := r.setStatus(ctx, userID, model.StatusOnline)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SAdd(ctx, onlineSetKey, strconv.FormatInt(userID, 10)); err != nil {
		return nil, err
	}
	return sd, nil
}

// MarkOffline removes the user from the online set and records offline
// status on the durable row.
func (r *Registry) MarkOffline(ctx context.Context, userID int64) (*StatusData, error) {
	sd, err := r.setStatus(ctx, userID, model.StatusOffline)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SRem(ctx, onlineSetKey, strconv.FormatInt(userID, 10)); err != nil {
		return nil, err
	}
	return sd, nil
}

// SetStatus validates and applies a user-chosen status. Set membership is
// unchanged; only connect/disconnect move users in or out of the roster.
func (r *Registry) SetStatus(ctx context.Context, userID int64, status string) (*StatusData, error) {
	if !model.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	return r.setStatus(ctx, userID, status)
}

// setStatus writes the durable fields and the shared status hash.
// last_online always advances, so concurrent connect/disconnect races
// converge to the last writer's state.
func (r *Registry) setStatus(ctx context.Context, userID int64, status string) (*StatusData, error) {
	now := time.Now()
	// The flag mirrors the status exactly: busy and away users stay in the
	// roster set but report is_online false.
	isOnline := status == model.StatusOnline
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":      status,
			"is_online":   isOnline,
			"last_online": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	sd := &StatusData{Status: status, IsOnline: isOnline, LastOnline: &now}
	data, _ := json.Marshal(sd)
	if err := r.cache.HSet(ctx, statusHashKey, strconv.FormatInt(userID, 10), string(data)); err != nil {
		r.logger.Warn("presence hash write failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	return sd, nil
}

// IsOnline reports shared-set membership for a user.
func (r *Registry) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return r.cache.SIsMember(ctx, onlineSetKey, strconv.FormatInt(userID, 10))
}

// ListOnline returns the current membership snapshot of the online set.
func (r *Registry) ListOnline(ctx context.Context) ([]int64, error) {
	members, err := r.cache.SMembers(ctx, onlineSetKey)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Status returns the current status data for a user, preferring the shared
// hash and falling back to the durable row.
func (r *Registry) Status(ctx context.Context, userID int64) (*StatusData, error) {
	raw, err := r.cache.HGet(ctx, statusHashKey, strconv.FormatInt(userID, 10))
	if err == nil {
		var sd StatusData
		if jsonErr := json.Unmarshal([]byte(raw), &sd); jsonErr == nil {
			return &sd, nil
		}
	}
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &StatusData{
		Status:     user.Status,
		IsOnline:   user.IsOnline,
		LastOnline: user.LastOnline,
	}, nil
}

// Snapshot returns status data for every currently-online user, keyed by
// decimal user ID. Used to seed a newly connected client.
func (r *Registry) Snapshot(ctx context.Context) (map[string]*StatusData, error) {
	ids, err := r.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*StatusData, len(ids))
	for _, id := range ids {
		sd, err := r.Status(ctx, id)
		if err != nil {
			r.logger.Warn("presence snapshot miss",
				zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		out[strconv.FormatInt(id, 10)] = sd
	}
	return out, nil
}

// Reconcile drops set members whose recorded status is offline. Run
// periodically; catches members left behind by an instance that died
// before running MarkOffline. Busy and away members are connected and
// stay in the set.
func (r *Registry) Reconcile(ctx context.Context) {
	members, err := r.cache.SMembers(ctx, onlineSetKey)
	if err != nil {
		r.logger.Warn("presence reconcile read failed", zap.Error(err))
		return
	}
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			_ = r.cache.SRem(ctx, onlineSetKey, m)
			continue
		}
		var user model.User
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				_ = r.cache.SRem(ctx, onlineSetKey, m)
			}
			continue
		}
		if user.Status == model.StatusOffline {
			_ = r.cache.SRem(ctx, onlineSetKey, m)
			r.logger.Info("pruned stale presence entry", zap.Int64("user_id", id))
		}
	}
}
