package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/advisor/internal/domain"
	"github.com/xiaot623/advisor/internal/protocol"
)

// WSTransport sends chat frames over one WebSocket connection.
// Calls are serialized; replies are matched by request_id.
type WSTransport struct {
	mu     sync.Mutex // one call at a time
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}

	errMu   sync.Mutex
	readErr error
}

var _ Transport = (*WSTransport)(nil)

// DialWS connects to the relay's /api/chat/ws endpoint.
func DialWS(ctx context.Context, url string) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	t := &WSTransport{
		conn:   conn,
		frames: make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// readLoop keeps reading so pings are answered between calls.
func (t *WSTransport) readLoop() {
	defer close(t.done)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.errMu.Lock()
			t.readErr = err
			t.errMu.Unlock()
			return
		}
		select {
		case t.frames <- data:
		default:
			// Buffer full of replies nobody is waiting for.
		}
	}
}

// Close closes the connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

// Chat writes one chat frame and waits for its reply.
func (t *WSTransport) Chat(ctx context.Context, req *domain.ChatRequest) ([]domain.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	requestID := "req_" + uuid.New().String()[:8]
	frame := protocol.ChatMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeChat,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
		},
		ChatRequest: *req,
	}
	if err := t.conn.WriteJSON(frame); err != nil {
		return nil, fmt.Errorf("write chat frame: %w", err)
	}

	for {
		var data []byte
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.done:
			// Frames read before the connection dropped are still queued.
			select {
			case data = <-t.frames:
			default:
				return nil, fmt.Errorf("read reply: %w", t.err())
			}
		case data = <-t.frames:
		}

		var base protocol.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return nil, fmt.Errorf("unmarshal reply: %w", err)
		}
		if base.RequestID != requestID {
			continue
		}

		switch base.Type {
		case protocol.TypeResult:
			var result protocol.ResultMessage
			if err := json.Unmarshal(data, &result); err != nil {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
			return result.Messages, nil
		case protocol.TypeError:
			var errMsg protocol.ErrorMessage
			if err := json.Unmarshal(data, &errMsg); err != nil {
				return nil, fmt.Errorf("unmarshal error: %w", err)
			}
			return nil, &RelayError{Status: errMsg.Status, Message: errMsg.Error, Details: errMsg.Details, Solution: errMsg.Solution}
		default:
			return nil, fmt.Errorf("unexpected frame type %q", base.Type)
		}
	}
}

func (t *WSTransport) err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.readErr == nil {
		return errors.New("connection closed")
	}
	return t.readErr
}
