package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linkupchat/linkup/realtime"
)

// HandlerFunc processes one decoded WS message. raw is the full message
// body so handlers can unmarshal their own flat shape.
type HandlerFunc func(ctx context.Context, session *realtime.Session, raw json.RawMessage) error

// Router dispatches incoming WS messages to registered handlers by type.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes and invokes the appropriate handler.
// Malformed or unknown messages are logged and dropped, never fatal.
func (r *Router) Dispatch(s *realtime.Session, raw []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		r.logger.Warn("malformed ws message",
			zap.Int64("user_id", s.UserID),
			zap.Error(err))
		return
	}

	fn, ok := r.handlers[head.Type]
	if !ok {
		r.logger.Debug("unhandled ws message type",
			zap.String("type", head.Type),
			zap.Int64("user_id", s.UserID))
		return
	}

	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, uuid.NewString())
	if err := fn(ctx, s, raw); err != nil {
		r.logger.Error("ws handler error",
			zap.String("type", head.Type),
			zap.Int64("user_id", s.UserID),
			zap.Error(err))
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
