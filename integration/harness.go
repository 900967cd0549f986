package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/linkupchat/linkup/api/rest"
	"github.com/linkupchat/linkup/api/sse"
	apiws "github.com/linkupchat/linkup/api/ws"
	"github.com/linkupchat/linkup/cache"
	"github.com/linkupchat/linkup/chat"
	"github.com/linkupchat/linkup/config"
	"github.com/linkupchat/linkup/mail"
	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/notify"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
	"github.com/linkupchat/linkup/scheduler"
	"github.com/linkupchat/linkup/social"
	"github.com/linkupchat/linkup/testutil"
)

const testAdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Hub      *realtime.Hub
	Registry *presence.Registry
	Notify   *notify.Service
	Social   *social.Service
	Chat     *chat.Service
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	WSURL    string // ws://127.0.0.1:<port>/ws
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		ResetTokenTTL:  time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Realtime ----
	hub := realtime.NewHub(pubsub, logger)
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(hub.Close)

	// ---- Services ----
	registry := presence.NewRegistry(db, c, logger)
	notifySvc := notify.NewService(db, hub, logger)
	socialSvc := social.NewService(db, notifySvc, logger)
	chatSvc := chat.NewService(db, hub, 50, logger)
	mailer := mail.New(config.MailConfig{}, logger)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	// ---- WS Router ----
	wsRouter := apiws.NewRouter(logger)
	apiws.NewPresenceHandlers(registry, hub, logger).RegisterHandlers(wsRouter)
	apiws.NewChatHandlers(chatSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server (mirrors main.go) ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(db, c, sec, mailer)
	userH := apirest.NewUserHandler(db, registry, hub)
	socialH := apirest.NewSocialHandler(db, socialSvc)
	notifH := apirest.NewNotificationHandler(notifySvc)
	chatH := apirest.NewChatHandler(chatSvc)
	adminH := apirest.NewAdminHandler(db, hub, registry, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)
		authG.POST("/password-reset", authH.RequestPasswordReset)
		authG.POST("/password-reset/confirm", authH.ConfirmPasswordReset)

		usersG := api.Group("/users")
		usersG.Use(mw.Auth(sec, c))
		usersG.GET("", userH.List)
		usersG.GET("/online", userH.Online)
		usersG.GET("/me", userH.Me)
		usersG.PATCH("/me", userH.UpdateProfile)
		usersG.PUT("/me/status", userH.SetStatus)
		usersG.GET("/:id", userH.Get)

		socialG := api.Group("/social")
		socialG.Use(mw.Auth(sec, c))
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
		notifG.Use(mw.Auth(sec, c))
		notifG.GET("", notifH.List)
		notifG.GET("/unread-count", notifH.UnreadCount)
		notifG.POST("/read-all", notifH.MarkAllRead)
		notifG.POST("/:id/read", notifH.MarkRead)
		notifG.DELETE("/:id", notifH.Delete)

		chatG := api.Group("/chat")
		chatG.Use(mw.Auth(sec, c))
		chatG.POST("/rooms", chatH.CreateRoom)
		chatG.GET("/rooms", chatH.ListRooms)
		chatG.POST("/rooms/:id/join", chatH.Join)
		chatG.POST("/rooms/:id/leave", chatH.Leave)
		chatG.GET("/rooms/:id/members", chatH.Members)
		chatG.POST("/rooms/:id/messages", chatH.PostMessage)
		chatG.GET("/rooms/:id/messages", chatH.Messages)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(testAdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/connections", adminH.ListConnections)
		adminG.POST("/kick/:id", adminH.KickUser)
		adminG.POST("/users/:id/ban", adminH.BanUser)
		adminG.POST("/presence/reconcile", adminH.ReconcilePresence)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	wsH := apiws.NewHandler(db, c, sec, hub, registry, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	return &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Hub:      hub,
		Registry: registry,
		Notify:   notifySvc,
		Social:   socialSvc,
		Chat:     chatSvc,
		Server:   server,
		URL:      url,
		WSURL:    wsURL,
		Sec:      sec,
	}
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Register creates an account and returns the session token and user ID.
func (ts *TestServer) Register(t *testing.T, email, username, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	userID = int64(result["user_id"].(float64))
	return
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds a channel so Recv* can apply timeouts without
// corrupting the connection with read deadlines.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a flat JSON message with the given type and extra fields.
func (wc *WSClient) Send(msgType string, fields map[string]interface{}) {
	wc.t.Helper()
	m := map[string]interface{}{"type": msgType}
	for k, v := range fields {
		m[k] = v
	}
	data, err := json.Marshal(m)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvAny reads one message with a timeout, returning an error rather than
// failing the test.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(res.data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("read timeout after %s", timeout)
	}
}

// RecvType reads messages until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, err := wc.RecvAny(time.Until(deadline))
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if msg["type"] == msgType {
			return msg
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// UniqueID returns a short unique string suitable for emails/usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
