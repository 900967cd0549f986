package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Session represents one connected client's WebSocket session.
type Session struct {
	UserID int64
	Conn   *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}

	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession creates a Session with its write goroutine started.
func NewSession(userID int64, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		UserID:   userID,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes v as JSON and sends it non-blocking.
func (s *Session) Send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping event",
				zap.Int64("user_id", s.UserID))
		}
	}
}

// Close signals the writePump to shut down. Safe to call concurrently:
// a duplicate-login displacement and the old connection's own disconnect
// path can both reach here.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineS))
}
