package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/linkupchat/linkup/api/rest"
	"github.com/linkupchat/linkup/api/sse"
	apiws "github.com/linkupchat/linkup/api/ws"
	"github.com/linkupchat/linkup/audit"
	"github.com/linkupchat/linkup/cache"
	"github.com/linkupchat/linkup/chat"
	"github.com/linkupchat/linkup/config"
	dbadapter "github.com/linkupchat/linkup/db"
	"github.com/linkupchat/linkup/mail"
	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/notify"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
	"github.com/linkupchat/linkup/scheduler"
	"github.com/linkupchat/linkup/social"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.New(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Realtime Hub ----
	hub := realtime.NewHub(pubsub, logger)
	if err := hub.Start(context.Background()); err != nil {
		log.Fatalf("hub: %v", err)
	}
	defer hub.Close()

	// ---- Services ----
	registry := presence.NewRegistry(db, c, logger)
	notifySvc := notify.NewService(db, hub, logger)
	socialSvc := social.NewService(db, notifySvc, logger)
	chatSvc := chat.NewService(db, hub, cfg.Social.MessagePageSize, logger)
	mailer := mail.New(cfg.Mail, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sched.AddTicker("notification_purge", 1*time.Hour, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		purged, err := notifySvc.PurgeRead(ctx, cfg.Social.NotificationRetention)
		if err != nil {
			logger.Error("notification purge failed", zap.Error(err))
			return
		}
		if purged > 0 {
			logger.Info("purged read notifications", zap.Int64("count", purged))
		}
	})
	sched.AddTicker("presence_reconcile", 5*time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		registry.Reconcile(ctx)
	})

	// ---- WS Router ----
	wsRouter := apiws.NewRouter(logger)
	presH := apiws.NewPresenceHandlers(registry, hub, logger)
	presH.RegisterHandlers(wsRouter)
	chatWSH := apiws.NewChatHandlers(chatSvc, logger)
	chatWSH.RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security, mailer)
	userH := apirest.NewUserHandler(db, registry, hub)
	socialH := apirest.NewSocialHandler(db, socialSvc)
	notifH := apirest.NewNotificationHandler(notifySvc)
	chatH := apirest.NewChatHandler(chatSvc)
	adminH := apirest.NewAdminHandler(db, hub, registry, sched, logger)

	api := r.Group("/api")
	api.Use(mw.Audit(auditSvc))
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)
		authG.POST("/password-reset", authH.RequestPasswordReset)
		authG.POST("/password-reset/confirm", authH.ConfirmPasswordReset)

		usersG := api.Group("/users")
		usersG.Use(mw.Auth(cfg.Security, c))
		usersG.GET("", userH.List)
		usersG.GET("/online", userH.Online)
		usersG.GET("/me", userH.Me)
		usersG.PATCH("/me", userH.UpdateProfile)
		usersG.PUT("/me/status", userH.SetStatus)
		usersG.GET("/:id", userH.Get)

		socialG := api.Group("/social")
		socialG.Use(mw.Auth(cfg.Security, c))
		socialG.POST("/requests", socialH.SendRequest)
		socialG.GET("/requests", socialH.ListPending)
		socialG.POST("/requests/:id/accept", socialH.Accept)
		socialG.POST("/requests/:id/reject", socialH.Reject)
		socialG.POST("/requests/:id/read", socialH.MarkRequestRead)
		socialG.GET("/friends", socialH.ListFriends)
		socialG.GET("/friends/:id/status", socialH.FriendshipStatus)
		socialG.DELETE("/friends/:id", socialH.RemoveFriend)
		socialG.PUT("/friends/:id/note", socialH.SetNote)
		socialG.POST("/block/:id", socialH.Block)
		socialG.POST("/unblock/:id", socialH.Unblock)

		notifG := api.Group("/notifications")
		notifG.Use(mw.Auth(cfg.Security, c))
		notifG.GET("", notifH.List)
		notifG.GET("/unread-count", notifH.UnreadCount)
		notifG.POST("/read-all", notifH.MarkAllRead)
		notifG.POST("/:id/read", notifH.MarkRead)
		notifG.DELETE("/:id", notifH.Delete)

		chatG := api.Group("/chat")
		chatG.Use(mw.Auth(cfg.Security, c))
		chatG.POST("/rooms", chatH.CreateRoom)
		chatG.GET("/rooms", chatH.ListRooms)
		chatG.POST("/rooms/:id/join", chatH.Join)
		chatG.POST("/rooms/:id/leave", chatH.Leave)
		chatG.GET("/rooms/:id/members", chatH.Members)
		chatG.POST("/rooms/:id/messages", chatH.PostMessage)
		chatG.GET("/rooms/:id/messages", chatH.Messages)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminAllowedIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/connections", adminH.ListConnections)
		adminG.POST("/kick/:id", adminH.KickUser)
		adminG.POST("/users/:id/ban", adminH.BanUser)
		adminG.POST("/presence/reconcile", adminH.ReconcilePresence)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apiws.NewHandler(db, c, cfg.Security, hub, registry, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
