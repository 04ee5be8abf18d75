package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"unicode/utf8"
)

// mockImage is a 1x1 transparent PNG.
const mockImage = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// MockClient answers without touching the network.
type MockClient struct {
	calls atomic.Int64
}

// NewMockClient creates a new mock upstream client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ready always succeeds.
func (m *MockClient) Ready() error { return nil }

// Calls returns how many generate calls were made.
func (m *MockClient) Calls() int64 { return m.calls.Load() }

// GenerateText echoes the prompt back.
func (m *MockClient) GenerateText(ctx context.Context, req *TextRequest) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	text := fmt.Sprintf("[MOCK] %s received: %q.", req.Model, truncate(req.Prompt, 100))
	if req.Attachment != nil {
		text += fmt.Sprintf(" Attached %s (%d bytes).", req.Attachment.MimeType, len(req.Attachment.Data))
	}
	return &Reply{Text: text}, nil
}

// GenerateImage returns a fixed placeholder image.
func (m *MockClient) GenerateImage(ctx context.Context, req *ImageRequest) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	return &Reply{Image: mockImage, MimeType: "image/png"}, nil
}

// truncate cuts s to maxLen runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
