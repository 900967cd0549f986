package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/linkupchat/linkup/cache"
	"github.com/linkupchat/linkup/config"
	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	sec      config.SecurityConfig
	hub      *realtime.Hub
	registry *presence.Registry
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	sec config.SecurityConfig,
	hub *realtime.Hub,
	registry *presence.Registry,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:       db,
		cache:    c,
		sec:      sec,
		hub:      hub,
		registry: registry,
		router:   router,
		logger:   logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Validate JWT.
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Validate session cache.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	// Upgrade to WebSocket.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := realtime.NewSession(claims.UserID, conn, h.logger)
	h.hub.Register(sess)
	h.handleConnect(sess)
	h.readPump(sess)
}

// handleConnect marks the user online, sends them the current presence
// snapshot, and announces the change to everyone.
func (h *Handler) handleConnect(s *realtime.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := h.registry.MarkOnline(ctx, s.UserID)
	if err != nil {
		h.logger.Error("mark online failed",
			zap.Int64("user_id", s.UserID), zap.Error(err))
	}

	// Snapshot goes only to the new connection.
	snapshot, err := h.registry.Snapshot(ctx)
	if err != nil {
		h.logger.Error("presence snapshot failed",
			zap.Int64("user_id", s.UserID), zap.Error(err))
		snapshot = map[string]*presence.StatusData{}
	}
	s.Send(realtime.InitialStatusesEvent{
		Type:     realtime.EventInitialStatuses,
		Statuses: snapshot,
	})

	if data != nil {
		_ = h.hub.BroadcastStatus(ctx, s.UserID, data)
	}
	h.logger.Info("user connected", zap.Int64("user_id", s.UserID))
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *realtime.Session) {
	defer func() {
		h.handleDisconnect(s)
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up after the connection closes, however it closed.
// The offline broadcast goes out before the session is removed so other
// clients always hear about the departure.
func (h *Handler) handleDisconnect(s *realtime.Session) {
	s.Close()

	// If a replacement connection has already taken over for this user,
	// the presence state belongs to it; only tear down the dead session.
	if h.hub.Session(s.UserID) == s {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data, err := h.registry.MarkOffline(ctx, s.UserID)
		if err != nil {
			h.logger.Error("mark offline failed",
				zap.Int64("user_id", s.UserID), zap.Error(err))
		}
		if data != nil {
			_ = h.hub.BroadcastStatus(ctx, s.UserID, data)
		}
	}

	h.hub.Unregister(s)
	h.logger.Info("user disconnected", zap.Int64("user_id", s.UserID))
}
