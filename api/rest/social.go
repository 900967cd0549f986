package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/social"
)

// SocialHandler handles friend request and friendship REST endpoints.
type SocialHandler struct {
	db     *gorm.DB
	social *social.Service
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(db *gorm.DB, s *social.Service) *SocialHandler {
	return &SocialHandler{db: db, social: s}
}

// SendRequest handles POST /api/social/requests.
func (h *SocialHandler) SendRequest(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req struct {
		ReceiverID int64 `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fr, err := h.social.SendRequest(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": fr})
}

// ListPending handles GET /api/social/requests.
func (h *SocialHandler) ListPending(c *gin.Context) {
	userID := mw.GetUserID(c)
	requests, err := h.social.ListPending(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Accept handles POST /api/social/requests/:id/accept.
func (h *SocialHandler) Accept(c *gin.Context) {
	userID := mw.GetUserID(c)
	reqID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.social.AcceptRequest(c.Request.Context(), reqID, userID); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// Reject handles POST /api/social/requests/:id/reject.
func (h *SocialHandler) Reject(c *gin.Context) {
	userID := mw.GetUserID(c)
	reqID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.social.RejectRequest(c.Request.Context(), reqID, userID); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rejected"})
}

// MarkRequestRead handles POST /api/social/requests/:id/read.
func (h *SocialHandler) MarkRequestRead(c *gin.Context) {
	userID := mw.GetUserID(c)
	reqID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.social.MarkRequestRead(c.Request.Context(), reqID, userID); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}

// ListFriends handles GET /api/social/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	userID := mw.GetUserID(c)
	friends, err := h.social.FriendsOf(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	result := make([]userView, len(friends))
	for i := range friends {
		result[i] = toUserView(&friends[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"friends": result})
}

// FriendshipStatus handles GET /api/social/friends/:id/status.
func (h *SocialHandler) FriendshipStatus(c *gin.Context) {
	userID := mw.GetUserID(c)
	otherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	status, err := h.social.Status(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friendship": status})
}

// RemoveFriend handles DELETE /api/social/friends/:id.
func (h *SocialHandler) RemoveFriend(c *gin.Context) {
	userID := mw.GetUserID(c)
	otherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.social.RemoveFriend(c.Request.Context(), userID, otherID); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// Block handles POST /api/social/block/:id.
func (h *SocialHandler) Block(c *gin.Context) {
	userID := mw.GetUserID(c)
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.social.Block(c.Request.Context(), userID, targetID); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "blocked"})
}

// Unblock handles POST /api/social/unblock/:id.
func (h *SocialHandler) Unblock(c *gin.Context) {
	userID := mw.GetUserID(c)
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.social.Unblock(c.Request.Context(), userID, targetID); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}

// SetNote handles PUT /api/social/friends/:id/note.
func (h *SocialHandler) SetNote(c *gin.Context) {
	userID := mw.GetUserID(c)
	friendID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Note string `json:"note" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.social.SetNote(c.Request.Context(), userID, friendID, req.Note); err != nil {
		writeSocialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "saved"})
}

// writeSocialError maps service errors onto HTTP responses.
func writeSocialError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, social.ErrSelfRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot target yourself"})
	case errors.Is(err, social.ErrDuplicatePending):
		c.JSON(http.StatusConflict, gin.H{"error": "request already pending"})
	case errors.Is(err, social.ErrAlreadyFriends):
		c.JSON(http.StatusConflict, gin.H{"error": "already friends"})
	case errors.Is(err, social.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "request already resolved"})
	case errors.Is(err, social.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
