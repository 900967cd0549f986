package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
	"github.com/linkupchat/linkup/scheduler"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db       *gorm.DB
	hub      *realtime.Hub
	registry *presence.Registry
	sched    *scheduler.Scheduler
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	hub *realtime.Hub,
	registry *presence.Registry,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, hub: hub, registry: registry, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	online, err := h.registry.ListOnline(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	var userCount int64
	_ = h.db.Model(&model.User{}).Count(&userCount).Error

	c.JSON(http.StatusOK, gin.H{
		"local_connections": h.hub.Count(),
		"online_users":      len(online),
		"total_users":       userCount,
		"scheduler_tasks":   h.sched.ListTickers(),
	})
}

// ListConnections returns the users connected to this instance.
// GET /api/admin/connections
func (h *AdminHandler) ListConnections(c *gin.Context) {
	ids := h.hub.LocalUserIDs()
	c.JSON(http.StatusOK, gin.H{"user_ids": ids, "count": len(ids)})
}

// KickUser forcibly disconnects a user's websocket on this instance.
// POST /api/admin/kick/:id
func (h *AdminHandler) KickUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s := h.hub.Session(userID)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not connected"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked user", zap.Int64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BanUser bans or unbans a user account.
// POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	result := h.db.Model(&model.User{}).Where("id = ?", userID).Update("banned", req.Ban)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	// Kick the user if currently connected.
	if req.Ban {
		if s := h.hub.Session(userID); s != nil {
			s.Close()
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "banned": req.Ban})
}

// ReconcilePresence forces an immediate presence reconcile pass.
// POST /api/admin/presence/reconcile
func (h *AdminHandler) ReconcilePresence(c *gin.Context) {
	h.registry.Reconcile(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
