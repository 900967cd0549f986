package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/linkupchat/linkup/chat"
	mw "github.com/linkupchat/linkup/middleware"
)

// ChatHandler handles chat room and message REST endpoints.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(s *chat.Service) *ChatHandler {
	return &ChatHandler{chat: s}
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=64"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

// CreateRoom handles POST /api/chat/rooms.
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := h.chat.CreateRoom(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// ListRooms handles GET /api/chat/rooms.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	rooms, err := h.chat.ListRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// Join handles POST /api/chat/rooms/:id/join.
func (h *ChatHandler) Join(c *gin.Context) {
	userID := mw.GetUserID(c)
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.chat.Join(c.Request.Context(), roomID, userID); err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

// Leave handles POST /api/chat/rooms/:id/leave.
func (h *ChatHandler) Leave(c *gin.Context) {
	userID := mw.GetUserID(c)
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.chat.Leave(c.Request.Context(), roomID, userID); err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

// Members handles GET /api/chat/rooms/:id/members.
func (h *ChatHandler) Members(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	members, err := h.chat.Members(c.Request.Context(), roomID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type postMessageRequest struct {
	Content    string         `json:"content" binding:"required,min=1,max=4000"`
	Attachment datatypes.JSON `json:"attachment"`
}

// PostMessage handles POST /api/chat/rooms/:id/messages.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	userID := mw.GetUserID(c)
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.PostMessage(c.Request.Context(), roomID, userID, req.Content, req.Attachment)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Messages handles GET /api/chat/rooms/:id/messages?before=<id>.
func (h *ChatHandler) Messages(c *gin.Context) {
	userID := mw.GetUserID(c)
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var beforeID int64
	if raw := c.Query("before"); raw != "" {
		beforeID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
	}
	msgs, err := h.chat.Messages(c.Request.Context(), roomID, userID, beforeID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, chat.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
