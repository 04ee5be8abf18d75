// Package ws serves the chat relay over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/advisor/internal/protocol"
	"github.com/xiaot623/advisor/internal/service"
	v1 "github.com/xiaot623/advisor/internal/transport/http/v1"
)

// Options tunes connection keepalive and limits.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// Server handles WebSocket connections.
type Server struct {
	service  *service.Service
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(svc *service.Service, opts Options) *Server {
	return &Server{
		service: svc,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same policy as the CORS middleware on the HTTP routes.
				return true
			},
		},
	}
}

type connection struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{} // closed when the writer stops
	once sync.Once
}

func (c *connection) close() {
	c.once.Do(func() { close(c.send) })
}

// HandleWebSocket upgrades the request and serves frames until the client leaves.
// GET /api/chat/ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	wsConn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := &connection{conn: wsConn, send: make(chan []byte, 16), quit: make(chan struct{})}
	if s.opts.MaxMessageSize > 0 {
		wsConn.SetReadLimit(s.opts.MaxMessageSize)
	}

	go s.writePump(conn)
	s.readPump(conn)
	<-conn.quit
	return nil
}

// readPump handles one frame at a time, so a connection never has more
// than one relay call in flight.
func (s *Server) readPump(conn *connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.close()
	}()

	conn.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(conn)
		return nil
	})

	for {
		s.extendReadDeadline(conn)
		_, message, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		reply := s.handleMessage(ctx, message)
		data, err := json.Marshal(reply)
		if err != nil {
			log.Printf("ERROR: failed to marshal frame: %v", err)
			continue
		}
		select {
		case conn.send <- data:
		case <-conn.quit:
			return
		}
	}
}

func (s *Server) extendReadDeadline(conn *connection) {
	if s.opts.ReadTimeout > 0 {
		conn.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
}

// writePump writes replies and keeps the connection alive with pings.
func (s *Server) writePump(conn *connection) {
	interval := s.opts.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
		close(conn.quit)
	}()

	for {
		select {
		case message, ok := <-conn.send:
			s.setWriteDeadline(conn)
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			s.setWriteDeadline(conn)
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) setWriteDeadline(conn *connection) {
	if s.opts.WriteTimeout > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
}

// handleMessage dispatches one client frame and returns the reply frame.
func (s *Server) handleMessage(ctx context.Context, data []byte) interface{} {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return errorFrame("", fmt.Errorf("%w: %v", v1.ErrMalformedRequest, err))
	}

	switch base.Type {
	case protocol.TypeChat:
		return s.handleChat(ctx, base.RequestID, data)
	default:
		return errorFrame(base.RequestID, fmt.Errorf("%w: unknown frame type %q", v1.ErrMalformedRequest, base.Type))
	}
}

func (s *Server) handleChat(ctx context.Context, requestID string, data []byte) interface{} {
	var msg protocol.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorFrame(requestID, fmt.Errorf("%w: %v", v1.ErrMalformedRequest, err))
	}

	resp, err := s.service.Relay(ctx, &msg.ChatRequest)
	if err != nil {
		return errorFrame(requestID, err)
	}

	return protocol.ResultMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeResult, Ts: time.Now().UnixMilli(), RequestID: requestID},
		Messages:    resp.Messages,
	}
}

func errorFrame(requestID string, err error) protocol.ErrorMessage {
	status, body := v1.MapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: chat relay failed: %v", err)
	}
	return protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeError, Ts: time.Now().UnixMilli(), RequestID: requestID},
		ErrorBody:   body,
		Status:      status,
	}
}
