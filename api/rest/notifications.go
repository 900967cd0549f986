package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/notify"
)

// NotificationHandler handles notification REST endpoints.
type NotificationHandler struct {
	notify *notify.Service
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(n *notify.Service) *NotificationHandler {
	return &NotificationHandler{notify: n}
}

// List handles GET /api/notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := mw.GetUserID(c)
	items, err := h.notify.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := mw.GetUserID(c)
	count, err := h.notify.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead handles POST /api/notifications/:id/read.
// Transient notifications are deleted on read instead of being flagged.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := mw.GetUserID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.notify.MarkRead(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := mw.GetUserID(c)
	updated, err := h.notify.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Delete handles DELETE /api/notifications/:id.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID := mw.GetUserID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.notify.Delete(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
