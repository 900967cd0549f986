package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/linkupchat/linkup/realtime"
)

// newSession creates a bare Session without a WebSocket connection.
func newSession(userID int64) *realtime.Session {
	return &realtime.Session{
		UserID:   userID,
		SendChan: make(chan []byte, 16),
		Done:     make(chan struct{}),
	}
}

func makeMessage(t *testing.T, msgType string, extra map[string]interface{}) []byte {
	t.Helper()
	m := map[string]interface{}{"type": msgType}
	for k, v := range extra {
		m[k] = v
	}
	b, err := json.Marshal(m)
	assert.NoError(t, err)
	return b
}

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(zap.NewNop())
	called := false
	r.On("ping", func(ctx context.Context, s *realtime.Session, raw json.RawMessage) error {
		called = true
		return nil
	})

	r.Dispatch(newSession(1), makeMessage(t, "ping", nil))
	assert.True(t, called)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(zap.NewNop())
	// Must not panic.
	r.Dispatch(newSession(1), []byte("not json"))
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(zap.NewNop())
	called := false
	r.On("known", func(_ context.Context, _ *realtime.Session, _ json.RawMessage) error {
		called = true
		return nil
	})
	r.Dispatch(newSession(1), makeMessage(t, "unknown", nil))
	assert.False(t, called)
}

func TestRouter_Dispatch_FullMessagePassed(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var got map[string]interface{}
	r.On("status_update", func(_ context.Context, _ *realtime.Session, raw json.RawMessage) error {
		return json.Unmarshal(raw, &got)
	})
	r.Dispatch(newSession(1), makeMessage(t, "status_update", map[string]interface{}{"status": "busy"}))
	assert.Equal(t, "busy", got["status"])
}

func TestRouter_Dispatch_HandlerErrorNoPanic(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.On("err", func(_ context.Context, _ *realtime.Session, _ json.RawMessage) error {
		return assert.AnError
	})
	r.Dispatch(newSession(1), makeMessage(t, "err", nil))
}

func TestRouter_TraceIDFromCtx_Present(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var traceID string
	r.On("trace", func(ctx context.Context, _ *realtime.Session, _ json.RawMessage) error {
		traceID = TraceIDFromCtx(ctx)
		return nil
	})
	r.Dispatch(newSession(1), makeMessage(t, "trace", nil))
	assert.NotEmpty(t, traceID)
}

func TestTraceIDFromCtx_Missing(t *testing.T) {
	assert.Equal(t, "", TraceIDFromCtx(context.Background()))
}

func TestRouter_MultipleHandlers(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var calls []string
	r.On("a", func(_ context.Context, _ *realtime.Session, _ json.RawMessage) error {
		calls = append(calls, "a")
		return nil
	})
	r.On("b", func(_ context.Context, _ *realtime.Session, _ json.RawMessage) error {
		calls = append(calls, "b")
		return nil
	})
	s := newSession(1)
	r.Dispatch(s, makeMessage(t, "a", nil))
	r.Dispatch(s, makeMessage(t, "b", nil))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRouter_ReplaceHandler(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var calls []string
	r.On("msg", func(_ context.Context, _ *realtime.Session, _ json.RawMessage) error {
		calls = append(calls, "first")
		return nil
	})
	r.On("msg", func(_ context.Context, _ *realtime.Session, _ json.RawMessage) error {
		calls = append(calls, "second")
		return nil
	})
	r.Dispatch(newSession(1), makeMessage(t, "msg", nil))
	assert.Equal(t, []string{"second"}, calls)
}
