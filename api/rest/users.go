package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
)

// UserHandler handles user profile REST endpoints.
type UserHandler struct {
	db       *gorm.DB
	registry *presence.Registry
	hub      *realtime.Hub
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, registry *presence.Registry, hub *realtime.Hub) *UserHandler {
	return &UserHandler{db: db, registry: registry, hub: hub}
}

type userView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Status    string `json:"status"`
	IsOnline  bool   `json:"is_online"`
}

func toUserView(u *model.User, includeEmail bool) userView {
	v := userView{
		ID:        u.ID,
		Username:  u.DisplayName(),
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		Status:    u.Status,
		IsOnline:  u.IsOnline,
	}
	if includeEmail {
		v.Email = u.Email
	}
	return v
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	userID := mw.GetUserID(c)
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserView(&user, true)})
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var user model.User
	if err := h.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserView(&user, false)})
}

// List handles GET /api/users. It returns all users with their presence,
// so a client can build a roster view in one request.
func (h *UserHandler) List(c *gin.Context) {
	var users []model.User
	if err := h.db.Order("username").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	result := make([]userView, len(users))
	for i := range users {
		result[i] = toUserView(&users[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"users": result})
}

type updateProfileRequest struct {
	Username  *string `json:"username" binding:"omitempty,min=2,max=32"`
	Bio       *string `json:"bio" binding:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=500"`
}

// UpdateProfile handles PATCH /api/users/me.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if err := h.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserView(&user, true)})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus handles PUT /api/users/me/status.
func (h *UserHandler) SetStatus(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.registry.SetStatus(c.Request.Context(), userID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, presence.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		case errors.Is(err, presence.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	if h.hub != nil {
		_ = h.hub.BroadcastStatus(c.Request.Context(), userID, data)
	}
	c.JSON(http.StatusOK, gin.H{"status": data})
}

// Online handles GET /api/users/online.
func (h *UserHandler) Online(c *gin.Context) {
	ids, err := h.registry.ListOnline(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": ids, "count": len(ids)})
}
