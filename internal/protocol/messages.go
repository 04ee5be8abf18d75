// Package protocol defines the WebSocket frames exchanged between chat clients and the relay.
package protocol

import "github.com/xiaot623/advisor/internal/domain"

// Frame types from client to relay
const (
	TypeChat = "chat"
)

// Frame types from relay to client
const (
	TypeResult = "result"
	TypeError  = "error"
)

// BaseMessage contains the fields common to every frame.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ChatMessage carries one relay request.
type ChatMessage struct {
	BaseMessage
	domain.ChatRequest
}

// ResultMessage carries the messages produced for a chat frame.
type ResultMessage struct {
	BaseMessage
	Messages []domain.Message `json:"messages"`
}

// ErrorMessage reports a failed chat frame. Status mirrors the HTTP status
// the same failure would have produced on POST /api/chat.
type ErrorMessage struct {
	BaseMessage
	domain.ErrorBody
	Status int `json:"status"`
}
